package handlers

import (
	"errors"
	"net/http"

	"caseTasks/internal/logger"
	"caseTasks/internal/service"

	"go.uber.org/zap"
)

func handleBusinessError(w http.ResponseWriter, err error) bool {
	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		return false
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)
	logger.Warn("HTTP: business error",
		zap.String("error_code", businessErr.Code),
		zap.String("field", businessErr.Field),
		zap.Int("http_status", statusCode))

	responseWithError(w, statusCode, businessErr.Code, businessErr.Field, businessErr.Message, businessErr.Details)
	return true
}

// handleServiceError answers with the mapped business error, or 500 for anything else.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	if handleBusinessError(w, err) {
		return
	}
	logger.Error("HTTP: service error", err,
		zap.String("operation", operation),
		zap.String("client_ip", r.RemoteAddr))
	responseWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "", "internal server error", nil)
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeUnauthenticated:
		return http.StatusUnauthorized
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeIllegalTransition, service.CodeVersionConflict:
		return http.StatusConflict
	case service.CodeReasonRequired,
		service.CodeAssignmentEmpty,
		service.CodeMixedAudience,
		service.CodeMultipleClients,
		service.CodePrimaryMutated,
		service.CodeDuplicateAssignee,
		service.CodeMultiplePrimaries:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
