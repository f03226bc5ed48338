package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-session-service/internal/usecase"
)

// sessionErrorCases maps the session usecase sentinels onto HTTP responses.
// Expired and revoked sessions intentionally share one message so a caller
// cannot distinguish the two.
var sessionErrorCases = []struct {
	err     error
	status  int
	message string
}{
	{usecase.ErrUnauthenticated, http.StatusUnauthorized, "authentication required"},
	{usecase.ErrSessionExpired, http.StatusUnauthorized, "session expired or revoked"},
	{usecase.ErrDeviceConflict, http.StatusConflict, "device is bound to another identity"},
	{usecase.ErrDeviceLimitExceeded, http.StatusUnprocessableEntity, "device limit reached for this identity"},
	{usecase.ErrStoreUnavailable, http.StatusServiceUnavailable, "session store unavailable"},
}

// RespondSessionError resolves a usecase error against the sentinel table,
// falling back to the provided status and message for anything unrecognized.
func RespondSessionError(c *gin.Context, err error, fallbackStatus int, fallbackMessage string) {
	for _, cs := range sessionErrorCases {
		if errors.Is(err, cs.err) {
			c.JSON(cs.status, NewErrorResponse(c, cs.message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
