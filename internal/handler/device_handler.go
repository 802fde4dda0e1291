package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/repository"
	"go.uber.org/zap"
)

// DeviceHandler registers FCM device tokens for push notifications
type DeviceHandler struct {
	devices repository.DeviceStore
	log     *zap.SugaredLogger
}

func NewDeviceHandler(devices repository.DeviceStore, log *zap.SugaredLogger) *DeviceHandler {
	return &DeviceHandler{devices: devices, log: log}
}

// RegisterDevice godoc
// @Summary Register a device for push notifications
// @Description Stores the device's FCM token. Idempotent per user and token.
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "Device registration"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /devices [post]
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.devices.Register(c.Request.Context(), userID, req.FCMToken, req.DeviceType); err != nil {
		h.log.Errorw("device registration failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to register device"})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Device registered"})
}
