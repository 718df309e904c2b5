package handler

import (
	"net/http"

	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// ConfigHandler serves the launch configuration.
type ConfigHandler struct {
	svc Launchpad
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(svc Launchpad) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

// GetConfig returns the factory address, creation fee and default token
// config.
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"factory":      cfg.Address.Hex(),
		"operator":     cfg.Operator.Hex(),
		"creation_fee": fixed.Format(cfg.CreationFee),
		"defaults":     newTokenConfigView(cfg.Defaults),
	})
}
