package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/logger"
	"github.com/listenupapp/listenup-reader/internal/store"
	"github.com/listenupapp/listenup-reader/internal/store/sqlite"
)

// JournalHandle wraps sqlite.Journal with Shutdownable.
type JournalHandle struct {
	*sqlite.Journal
}

// Shutdown implements do.Shutdownable.
func (h *JournalHandle) Shutdown() error {
	return h.Journal.Close()
}

// ProvideJournal provides the sync journal database.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return nil, err
	}

	journal, err := sqlite.Open(cfg.JournalDBPath(), log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Sync journal opened", "path", cfg.JournalDBPath())
	return &JournalHandle{Journal: journal}, nil
}

// StoreHandle wraps the progress store with Shutdownable.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Store.Close()
}

// ProvideStore provides the progress store with its journal attached.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	journal := do.MustInvoke[*JournalHandle](i)

	st, err := store.Open(cfg.ProgressDBPath(), log.Logger)
	if err != nil {
		return nil, err
	}
	st.SetJournal(journal.Journal)

	log.Info("Progress store opened", "path", cfg.ProgressDBPath())
	return &StoreHandle{Store: st}, nil
}
