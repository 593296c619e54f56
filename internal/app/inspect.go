package app

import (
	"errors"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/config"
	"github.com/dokzlo13/duskd/internal/control"
	"github.com/dokzlo13/duskd/internal/cycle"
	"github.com/dokzlo13/duskd/internal/db"
	"github.com/dokzlo13/duskd/internal/kv"
	"github.com/dokzlo13/duskd/internal/ledger"
)

// PersistedState is what survives between cycles.
type PersistedState struct {
	Values map[string]int64 // missing keys are omitted
	Recent []*ledger.Entry
}

// InspectKeys are the store keys reported by Inspect.
var InspectKeys = []string{clock.KeyEpoch, control.KeyDownFilter, control.KeyUpFilter, cycle.KeyBoots}

// Inspect reads the persisted store and the most recent ledger entries
// without running a cycle.
func Inspect(cfg *config.Config, limit int) (*PersistedState, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	store := kv.NewSQLiteStore(database.DB, cfg.Database.Namespace)
	defer store.Close()

	st := &PersistedState{Values: make(map[string]int64)}
	for _, key := range InspectKeys {
		v, err := store.GetInt64(key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		st.Values[key] = v
	}

	st.Recent, err = ledger.New(database.DB, nil).Recent(limit)
	if err != nil {
		return nil, err
	}
	return st, nil
}
