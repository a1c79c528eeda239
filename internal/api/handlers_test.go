package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pedrovictor26/ofix-assistant/internal/assistant"
	"github.com/pedrovictor26/ofix-assistant/internal/intent"
)

type mockRouter struct {
	lastText    string
	lastSubject string
	result      assistant.Result
}

func (m *mockRouter) RouteMessage(ctx context.Context, text, subjectID string) assistant.Result {
	m.lastText = text
	m.lastSubject = subjectID
	return m.result
}

func postMessage(t *testing.T, handler http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleMessage(t *testing.T) {
	router := &mockRouter{result: assistant.Result{
		Response:     "Agendamento confirmado!",
		ProcessedBy:  intent.ProcessorLocal,
		Done:         true,
		SideEffectID: "OS-000001",
	}}
	handler := NewHandler(router, "")

	w := postMessage(t, handler, "", `{"message":"agendar revisão","userId":"user-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Response    string `json:"response"`
		ProcessedBy string `json:"processedBy"`
		Done        bool   `json:"done"`
		ReferenceID string `json:"referenceId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Response != "Agendamento confirmado!" || !resp.Done || resp.ReferenceID != "OS-000001" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ProcessedBy != "local" {
		t.Errorf("processedBy = %q, want local", resp.ProcessedBy)
	}
	if router.lastText != "agendar revisão" || router.lastSubject != "user-1" {
		t.Errorf("router got %q/%q", router.lastText, router.lastSubject)
	}
}

func TestHandleMessageValidation(t *testing.T) {
	handler := NewHandler(&mockRouter{}, "")

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":"","userId":"user-1"}`},
		{"missing user", `{"message":"oi"}`},
		{"malformed json", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postMessage(t, handler, "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var errResp struct {
				Error struct {
					Type string `json:"type"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("unmarshal error body: %v", err)
			}
			if errResp.Error.Type != "invalid_request_error" {
				t.Errorf("error type = %q", errResp.Error.Type)
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	handler := NewHandler(&mockRouter{}, "secret-token")

	w := postMessage(t, handler, "", `{"message":"oi","userId":"u"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = postMessage(t, handler, "wrong", `{"message":"oi","userId":"u"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}

	w = postMessage(t, handler, "secret-token", `{"message":"oi","userId":"u"}`)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestHealthIsAlwaysOpen(t *testing.T) {
	handler := NewHandler(&mockRouter{}, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
