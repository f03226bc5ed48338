package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-session-service/internal/transport/http/middleware"
	"github.com/arklim/tenant-session-service/internal/usecase"
)

// SessionHandler exposes read access to the caller's validated session.
type SessionHandler struct {
	validator *usecase.SessionValidator
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(validator *usecase.SessionValidator) *SessionHandler {
	return &SessionHandler{validator: validator}
}

// RegisterRoutes binds session introspection routes.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/session", middleware.RequireSession(h.validator), h.current)
}

func (h *SessionHandler) current(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		TenantID:          session.TenantID,
		IdentityKind:      string(session.Identity.Kind),
		IdentityValue:     session.Identity.Value,
		DeviceFingerprint: session.DeviceFingerprint,
		DeviceLabel:       session.DeviceLabel,
		ExpiresAt:         session.ExpiresAt,
	})
}
