package control

import "sync"

// Pins is binary pin I/O used by control scripts.
type Pins interface {
	Read(pin int) (bool, error)
	Write(pin int, level bool) error
}

// MemoryPins is an in-memory pin bank. Inputs are set with SetInput; writes
// are recorded and visible through Output.
type MemoryPins struct {
	mu      sync.Mutex
	inputs  map[int]bool
	outputs map[int]bool
	writes  int
}

// NewMemoryPins creates an empty pin bank.
func NewMemoryPins() *MemoryPins {
	return &MemoryPins{
		inputs:  make(map[int]bool),
		outputs: make(map[int]bool),
	}
}

func (p *MemoryPins) Read(pin int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputs[pin], nil
}

func (p *MemoryPins) Write(pin int, level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs[pin] = level
	p.writes++
	return nil
}

// SetInput sets the level returned by Read.
func (p *MemoryPins) SetInput(pin int, level bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs[pin] = level
}

// Output returns the last level written to pin.
func (p *MemoryPins) Output(pin int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputs[pin]
}

// Writes returns the number of writes performed.
func (p *MemoryPins) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}
