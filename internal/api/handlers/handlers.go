package handlers

import (
	"github.com/frostdev-ops/pma-solar-go/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/frostdev-ops/pma-solar-go/internal/core/solar"
	"github.com/frostdev-ops/pma-solar-go/internal/database"
	"github.com/frostdev-ops/pma-solar-go/internal/websocket"
	"github.com/sirupsen/logrus"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg    *config.Config
	repos  *database.Repositories
	log    *logrus.Logger
	wsHub  *websocket.Hub
	engine *solar.Engine
	ha     *homeassistant.RESTClient
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, repos *database.Repositories, logger *logrus.Logger, wsHub *websocket.Hub, engine *solar.Engine, ha *homeassistant.RESTClient) *Handlers {
	return &Handlers{
		cfg:    cfg,
		repos:  repos,
		log:    logger,
		wsHub:  wsHub,
		engine: engine,
		ha:     ha,
	}
}
