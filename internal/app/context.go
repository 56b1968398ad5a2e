package app

import (
	"github.com/anqingli/tingshu/internal/infra/config"
	"github.com/anqingli/tingshu/internal/infra/logger"
	"github.com/anqingli/tingshu/internal/store"
)

// Context holds the shared resources every daemon wires up at startup: the
// configuration, the logger, and the task store.
type Context struct {
	Config *config.Config
	Logger *logger.Logger
	Store  *store.Store
}

func NewContext(cfg *config.Config, log *logger.Logger, st *store.Store) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
		Store:  st,
	}
}
