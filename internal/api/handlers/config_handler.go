package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
)

// ConfigHandler handles requests for the /config REST endpoints.
type ConfigHandler struct {
	configService services.IConfigService
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(configService services.IConfigService) *ConfigHandler {
	return &ConfigHandler{configService: configService}
}

// GetPublicConfig returns the publicly accessible configuration
// parameters. Handles GET /v1/config
func (h *ConfigHandler) GetPublicConfig(c *gin.Context) {
	publicConfig, err := h.configService.GetAllPublic(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve configuration"})
		return
	}
	c.JSON(http.StatusOK, publicConfig)
}

type setConfigRequest struct {
	Key    string      `json:"key" binding:"required"`
	Value  interface{} `json:"value" binding:"required"`
	Public bool        `json:"public"`
}

// SetConfigValue handles PUT /v1/admin/config
func (h *ConfigHandler) SetConfigValue(c *gin.Context) {
	var req setConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.configService.SetConfigValue(c.Request.Context(), req.Key, req.Value, req.Public); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
