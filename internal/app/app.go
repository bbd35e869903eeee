// Package app wires the gateway together: tool bridge, model client,
// conversation store, and agent, built once per process and shared by every
// concurrent turn.
package app

import (
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/nviv/nviv/internal/agent"
	"github.com/nviv/nviv/internal/bridge"
	"github.com/nviv/nviv/internal/config"
	"github.com/nviv/nviv/internal/conversation"
	"github.com/nviv/nviv/internal/log"
)

// ErrInitialization indicates startup wiring failed. Nothing should serve
// traffic after seeing it.
var ErrInitialization = errors.New("app: initialization failed")

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Model  llms.Model
	Bridge *bridge.Bridge
	Store  *conversation.Store
	Agent  *agent.Agent

	closeOnce sync.Once
}

// Close releases everything Setup built: bridge first so the tool server
// subprocess exits, then the store. Idempotent and safe after a failed
// Setup.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.Bridge != nil {
			if err := a.Bridge.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Store != nil {
			if err := a.Store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Logger != nil {
			a.Logger.Info("application shut down")
		}
	})
	return errors.Join(errs...)
}
