package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	apperrors "fractal-graph/backend/pkg/errors"
)

// Error codes carried in the "extensions.code" field of every error
const (
	CodeNotFound       = "NOT_FOUND"
	CodeAlreadyExists  = "ALREADY_EXISTS"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// errorResponse is the envelope for failed requests
type errorResponse struct {
	Errors gqlerror.List `json:"errors"`
}

// mapError converts a taxonomy error into a client error and HTTP status.
// Store failures are opaque to clients.
func mapError(err error, operation string) (*gqlerror.Error, int) {
	code, status, message := CodeInternalServer, http.StatusInternalServerError, "Internal server error"

	switch {
	case apperrors.IsNotFound(err):
		code, status, message = CodeNotFound, http.StatusNotFound, err.Error()
	case apperrors.IsAlreadyExists(err):
		code, status, message = CodeAlreadyExists, http.StatusConflict, err.Error()
	case apperrors.IsInvalidArgument(err):
		code, status, message = CodeInvalidInput, http.StatusBadRequest, err.Error()
	}

	return &gqlerror.Error{
		Message: message,
		Extensions: map[string]interface{}{
			"code":      code,
			"operation": operation,
		},
	}, status
}

// respondError writes err in the error envelope and logs server-side failures
func (s *Server) respondError(c *gin.Context, operation string, err error) {
	gqlErr, status := mapError(err, operation)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, errorResponse{Errors: gqlerror.List{gqlErr}})
}

// invalidInput reports a malformed request parameter
func (s *Server) invalidInput(c *gin.Context, operation, field, reason string) {
	s.respondError(c, operation, apperrors.NewInvalidArgument(field, reason))
}
