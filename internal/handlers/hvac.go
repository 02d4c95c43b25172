package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jluzny/hag/internal/hvac"
	"github.com/jluzny/hag/internal/models"
	"github.com/jluzny/hag/internal/service"
)

const (
	statusOK          = "ok"
	statusOverrideSet = "override_set"
	statusTurnedOff   = "turned_off"
	statusConditioned = "condition_accepted"

	errGetStatus       = "failed to load status"
	errInvalidBodyPref = "invalid body: "
)

// logAndJSONError centralizes error logging and responses.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondWithStatus includes the current machine status (best-effort).
func (h *Handler) respondWithStatus(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	if st, err := h.services.Controller.Status(ctx); err == nil {
		resp["hvac"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// OverrideRequest is the manual override payload.
type OverrideRequest struct {
	// Mode to force. Allowed: heat, cool, off
	Mode string `json:"mode" binding:"required" example:"heat"`
	// Optional target temperature in Celsius
	TargetTemp *float64 `json:"target_temp,omitempty" example:"21.5"`
	// Optional unit preset identifier
	Preset string `json:"preset,omitempty" example:"comfort"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Current controller status
// @Tags         hvac
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/hvac/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Controller.Status(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "hvac_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Set manual override
// @Description  Forces heat, cool, or off until cleared by evaluation or an explicit off
// @Tags         hvac
// @Accept       json
// @Produce      json
// @Param        body  body   OverrideRequest  true  "Override payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/hvac/override [post]
// @Security     BearerAuth
func (h *Handler) setOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	err := h.services.Controller.ManualOverride(c.Request.Context(), service.OverrideParams{
		Mode:       req.Mode,
		TargetTemp: req.TargetTemp,
		Preset:     req.Preset,
	})
	if err != nil {
		if h.log != nil {
			h.log.Errorw("hvac_override_failed", "err", err, "mode", req.Mode)
		}
		code := http.StatusBadRequest
		if errors.Is(err, hvac.ErrNotRunning) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatus(c, statusOverrideSet, gin.H{"mode": req.Mode})
}

// @Summary      Turn everything off
// @Tags         hvac
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/hvac/off [post]
// @Security     BearerAuth
func (h *Handler) turnOff(c *gin.Context) {
	if err := h.services.Controller.Off(c.Request.Context()); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, hvac.ErrNotRunning) {
			code = http.StatusConflict
		}
		h.logAndJSONError(c, code, err.Error(), "hvac_off_failed", err)
		return
	}
	h.respondWithStatus(c, statusTurnedOff, gin.H{})
}

// @Summary      Inject conditions
// @Description  Merges indoor/outdoor temperature and clock fields into the operating context and triggers an evaluation
// @Tags         hvac
// @Accept       json
// @Produce      json
// @Param        body  body   models.Condition  true  "Partial condition"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/hvac/condition [post]
// @Security     BearerAuth
func (h *Handler) sendCondition(c *gin.Context) {
	var cond models.Condition
	if err := c.ShouldBindJSON(&cond); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Controller.SendCondition(c.Request.Context(), cond); err != nil {
		if h.log != nil {
			h.log.Errorw("hvac_condition_failed", "err", err)
		}
		code := http.StatusBadRequest
		if errors.Is(err, hvac.ErrNotRunning) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatus(c, statusConditioned, gin.H{})
}
