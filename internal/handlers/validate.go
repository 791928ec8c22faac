package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"caseTasks/internal/logger"
	"caseTasks/internal/repository"
	"caseTasks/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func checkContentType(r *http.Request, target string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == target
}

var errContentType = errors.New("Content-Type must be application/json")

func readJSON(r *http.Request, dst any) error {
	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: wrong content type",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))
		return errContentType
	}

	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		logger.Warn("HTTP: reading JSON", zap.Error(err), zap.String("client_ip", r.RemoteAddr))
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

// decodeJSON writes the error response itself and reports whether dst was filled.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := readJSON(r, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errContentType):
		responseWithError(w, http.StatusUnsupportedMediaType, service.CodeValidation, "", err.Error(), nil)
	default:
		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "", err.Error(), nil)
	}
	return false
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil || id == uuid.Nil {
		logger.Warn("HTTP: bad id",
			zap.String("id", idParam),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "id", "id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parsePaging(r *http.Request) (page, limit int, err error) {
	q := r.URL.Query()
	page, limit = 1, repository.DefaultLimit

	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > repository.MaxLimit {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d", repository.MaxLimit)
		}
	}
	return page, limit, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
