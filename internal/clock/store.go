package clock

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/kv"
)

// KeyEpoch is the store key holding the predicted wake instant (Unix seconds).
const KeyEpoch = "s_time"

// Store persists the wall clock across low-power sleep.
type Store struct {
	clock Clock
	kv    kv.Store
}

// NewStore creates a clock store over a key-value store.
func NewStore(c Clock, store kv.Store) *Store {
	return &Store{clock: c, kv: store}
}

// Load reads the stored epoch and applies it to the clock.
// A missing value returns kv.ErrNotFound and leaves the clock untouched.
func (s *Store) Load() (int64, error) {
	epoch, err := s.kv.GetInt64(KeyEpoch)
	if err != nil {
		return 0, err
	}

	if err := s.clock.Set(time.Unix(epoch, 0)); err != nil {
		return 0, fmt.Errorf("failed to apply stored time: %w", err)
	}

	log.Debug().Int64("epoch", epoch).Msg("Applied stored time")
	return epoch, nil
}

// Store writes the instant the device expects to hold at its next wake:
// the current time plus offsetSeconds. Call it after the sleep duration is
// final; the value is staged until the key-value store commits.
func (s *Store) Store(offsetSeconds int64) error {
	wake := s.clock.Now().Unix() + offsetSeconds
	if err := s.kv.SetInt64(KeyEpoch, wake); err != nil {
		return fmt.Errorf("failed to store wake time: %w", err)
	}

	log.Debug().
		Int64("epoch", wake).
		Int64("offset_seconds", offsetSeconds).
		Msg("Stored predicted wake time")
	return nil
}
