// Package api exposes the assistant over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pedrovictor26/ofix-assistant/internal/assistant"
)

const maxRequestBodySize = 64 << 10 // 64KB; chat messages are short

// Router routes one message through the assistant engine.
type Router interface {
	RouteMessage(ctx context.Context, text, subjectID string) assistant.Result
}

// messageRequest is the body of POST /api/assistant/message.
type messageRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// messageResponse mirrors assistant.Result on the wire.
type messageResponse struct {
	Response    string `json:"response"`
	ProcessedBy string `json:"processedBy"`
	Done        bool   `json:"done"`
	ReferenceID string `json:"referenceId,omitempty"`
}

// NewHandler returns the HTTP handler for the assistant API. When apiToken
// is non-empty the message endpoint requires bearer auth; /health is always
// open.
func NewHandler(router Router, apiToken string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if apiToken != "" {
			r.Use(BearerAuth(apiToken))
		}
		r.Post("/api/assistant/message", handleMessage(router))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleMessage(router Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId is required")
			return
		}

		result := router.RouteMessage(r.Context(), req.Message, req.UserID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageResponse{
			Response:    result.Response,
			ProcessedBy: string(result.ProcessedBy),
			Done:        result.Done,
			ReferenceID: result.SideEffectID,
		})
	}
}

// httpError writes a JSON error body in the common {error:{type,message}}
// shape.
func httpError(w http.ResponseWriter, status int, errType, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": fmt.Sprintf(format, args...),
		},
	})
}
