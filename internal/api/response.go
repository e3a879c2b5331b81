package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiResult is the uniform envelope for the administrative endpoints.
type apiResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

func okResult(result any) apiResult {
	return apiResult{Status: "ok", Result: result}
}

func errorResult(message string) apiResult {
	return apiResult{Status: "error", Error: message}
}

var fallbackErrorResponse = []byte(`{"status":"error","error":"internal server error"}`)

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) {
	// Marshal first so encoding errors never produce a half-written body.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(jsonData); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
