package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

var errInvalidRequest = errors.New("invalid request")

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Key       string `json:"key,omitempty"`
	Available *int64 `json:"available,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last error attached with c.Error.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var verr *domain.ValidationError
	var short *domain.InsufficientStockError

	switch {
	case errors.As(err, &verr):
		typ := "validation_error"
		if errors.Is(err, domain.ErrUnknownProduct) {
			typ = "unknown_product"
		}
		return http.StatusBadRequest, errorPayload{Type: typ, Message: verr.Reason, Field: verr.Field}
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	case errors.As(err, &short):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:      "insufficient_stock",
			Message:   err.Error(),
			Key:       short.Key.String(),
			Available: &short.Available,
			Requested: &short.Requested,
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, domain.ErrStorageFailure):
		return http.StatusServiceUnavailable, errorPayload{Type: "storage_failure", Message: "ledger storage unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{Type: "timeout", Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return 499, errorPayload{Type: "cancelled", Message: "request cancelled"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// grpcError maps domain errors onto gRPC status codes.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	httpStatus, payload := mapError(err)
	code := codes.Internal
	switch httpStatus {
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusUnprocessableEntity:
		code = codes.FailedPrecondition
	case http.StatusNotFound:
		code = codes.NotFound
	case http.StatusConflict:
		code = codes.Aborted
	case http.StatusServiceUnavailable:
		code = codes.Unavailable
	case http.StatusGatewayTimeout:
		code = codes.DeadlineExceeded
	case 499:
		code = codes.Canceled
	}
	return status.Error(code, payload.Type+": "+payload.Message)
}
