package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/transport/http/middleware"
	"github.com/arklim/tenant-session-service/internal/usecase"
)

const tenantIDHeader = "X-Tenant-ID"

// AuthHandler exposes the login/logout surface.
type AuthHandler struct {
	issuer      *usecase.TokenIssuer
	validator   *usecase.SessionValidator
	credentials port.CredentialVerifier
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(issuer *usecase.TokenIssuer, validator *usecase.SessionValidator, credentials port.CredentialVerifier) *AuthHandler {
	return &AuthHandler{
		issuer:      issuer,
		validator:   validator,
		credentials: credentials,
	}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of login.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.login)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.login)
	}

	r.POST("/logout", middleware.RequireSession(h.validator), h.logout)
}

func (h *AuthHandler) login(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	identity, err := h.credentials.VerifyCredentials(c.Request.Context(), tenantID, req.Account, req.Secret)
	if err != nil {
		if errors.Is(err, port.ErrCredentialsRejected) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
			return
		}
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "credential verification unavailable"))
		return
	}

	var label *string
	if trimmed := strings.TrimSpace(req.DeviceLabel); trimmed != "" {
		label = &trimmed
	}

	issued, err := h.issuer.IssueSession(c.Request.Context(), tenantID, identity, req.DeviceFingerprint, label)
	if err != nil {
		RespondSessionError(c, err, http.StatusBadRequest, "unable to issue session")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.validator.Revoke(c.Request.Context(), session.Token); err != nil {
		RespondSessionError(c, err, http.StatusInternalServerError, "unable to revoke session")
		return
	}

	c.Status(http.StatusNoContent)
}

func tenantFromHeader(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader(tenantIDHeader))
	if raw == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing X-Tenant-ID header"))
		return 0, false
	}
	tenantID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || tenantID <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid X-Tenant-ID header"))
		return 0, false
	}
	return tenantID, true
}
