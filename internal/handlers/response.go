package handlers

import (
	"encoding/json"
	"net/http"

	"caseTasks/internal/logger"
)

type Payload struct {
	Key     string
	Payload any
}

func toPayload(key string, pl any) Payload {
	return Payload{Key: key, Payload: pl}
}

func toJSON(storage map[string]any, payload Payload) {
	storage[payload.Key] = payload.Payload
}

func responseWithJSON(w http.ResponseWriter, code int, payload ...Payload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	storage := make(map[string]any, len(payload))
	for _, pl := range payload {
		toJSON(storage, pl)
	}
	if err := json.NewEncoder(w).Encode(storage); err != nil {
		logger.Error("HTTP: encoding response", err)
	}
}

func responseWithError(w http.ResponseWriter, code int, errCode, field, message string, details map[string]any) {
	payload := []Payload{
		toPayload("code", errCode),
		toPayload("message", message),
	}
	if field != "" {
		payload = append(payload, toPayload("field", field))
	}
	if len(details) > 0 {
		payload = append(payload, toPayload("details", details))
	}
	responseWithJSON(w, code, payload...)
}

func healthCheck(w http.ResponseWriter, err error) {
	if err != nil {
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("service", serviceName))
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("status", "ok"),
		toPayload("service", serviceName))
}
