package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint. The tenant is
// carried in the X-Tenant-ID header, not the body.
type LoginRequest struct {
	Account           string `json:"account" binding:"required"`
	Secret            string `json:"secret" binding:"required"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
	DeviceLabel       string `json:"device_label"`
}

// LoginResponse returns the minted session credential.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResponse is the validated view of the caller's session.
type SessionResponse struct {
	TenantID          int64     `json:"tenant_id"`
	IdentityKind      string    `json:"identity_kind"`
	IdentityValue     string    `json:"identity_value"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	DeviceLabel       *string   `json:"device_label,omitempty"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
