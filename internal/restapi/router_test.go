package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ampiolux/lcs-gateway/internal/manager"
)

func TestStatusEndpointWithNoAgents(t *testing.T) {
	m := manager.New()
	defer m.DisconnectAll()
	r := NewRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/lcs/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !env.Success {
		t.Fatalf("success = false, want true")
	}
}

func TestDimLampWithOutOfRangeMasterReturns400(t *testing.T) {
	m := manager.New()
	defer m.DisconnectAll()
	r := NewRouter(m)

	body := strings.NewReader(`{"brightness":50}`)
	req := httptest.NewRequest(http.MethodPost, "/lcs/lamps/0/1/5/control", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestDimLampWithNoRegisteredAgentReturns400(t *testing.T) {
	m := manager.New()
	defer m.DisconnectAll()
	r := NewRouter(m)

	body := strings.NewReader(`{"brightness":50}`)
	req := httptest.NewRequest(http.MethodPost, "/lcs/lamps/1/1/5/control", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (no default agent), body=%s", rec.Code, rec.Body.String())
	}
}

func TestAgentsEndpointListsRegistered(t *testing.T) {
	m := manager.New()
	defer m.DisconnectAll()
	_ = m.AddAgent("a", "localhost", 1, "Kitchen")
	r := NewRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/lcs/agents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Kitchen") {
		t.Fatalf("body missing agent name: %s", rec.Body.String())
	}
}
