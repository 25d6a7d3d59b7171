package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/logger"
	"github.com/listenupapp/listenup-reader/internal/session"
)

// SessionManagerHandle wraps session.Manager with Shutdownable.
type SessionManagerHandle struct {
	*session.Manager
}

// Shutdown implements do.Shutdownable. Closing the manager performs each
// open session's final progress sync.
func (h *SessionManagerHandle) Shutdown() error {
	h.CloseAll()
	return nil
}

// ProvideSessionManager provides the reading session manager.
func ProvideSessionManager(i do.Injector) (*SessionManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	st := do.MustInvoke[*StoreHandle](i)

	manager := session.NewManager(cfg, st.Store, log.Logger)
	return &SessionManagerHandle{Manager: manager}, nil
}
