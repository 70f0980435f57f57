package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/flowgate/gateway/gateway/registry"
	"github.com/flowgate/gateway/gateway/tracker"
)

func newTestServer() *Server {
	t := tracker.New("node-a")
	r := registry.New("node-a", t)
	ready := true
	return NewServer(r, &ready)
}

func doJSON(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestListEmptyRegistry(t *testing.T) {
	s := newTestServer()
	w := doJSON(s, http.MethodGet, "/apis", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var apis []apitypes.Definition
	json.Unmarshal(w.Body.Bytes(), &apis)
	if len(apis) != 0 {
		t.Fatalf("expected empty list, got %v", apis)
	}
}

func TestAddGetUpdateDeleteLifecycle(t *testing.T) {
	s := newTestServer()
	def := apitypes.Definition{Name: "svcA", Proxy: apitypes.ProxyConfig{TargetURL: "svca.internal", Port: 8080}}

	w := doJSON(s, http.MethodPost, "/apis/svcA", def)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on add, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, http.MethodPost, "/apis/svcA", def)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 already_tracked on duplicate add, got %d", w.Code)
	}
	assertAdminMessage(t, w, "already_tracked")

	w = doJSON(s, http.MethodGet, "/apis/svcA", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", w.Code)
	}
	var got apitypes.Definition
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.RefNumber != 0 {
		t.Fatalf("expected ref_number 0 after add, got %d", got.RefNumber)
	}

	def.Name = "svcA-renamed"
	w = doJSON(s, http.MethodPut, "/apis/svcA", def)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, http.MethodGet, "/apis/svcA", nil)
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.RefNumber != 1 || got.Name != "svcA-renamed" {
		t.Fatalf("expected ref_number bumped and name updated, got %+v", got)
	}

	w = doJSON(s, http.MethodDelete, "/apis/svcA", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", w.Code)
	}

	w = doJSON(s, http.MethodDelete, "/apis/svcA", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 not_found on repeat delete, got %d", w.Code)
	}
	assertAdminMessage(t, w, "not_found")
}

func TestGetUnknownAPIIs404(t *testing.T) {
	s := newTestServer()
	w := doJSON(s, http.MethodGet, "/apis/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	assertAdminMessage(t, w, "not_found")
}

func TestReadyReflectsFlag(t *testing.T) {
	tr := tracker.New("node-a")
	reg := registry.New("node-a", tr)
	ready := false
	s := NewServer(reg, &ready)

	w := doJSON(s, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not ready, got %d", w.Code)
	}

	ready = true
	w = doJSON(s, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", w.Code)
	}
}

func assertAdminMessage(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body["message"] != want {
		t.Fatalf("expected message %q, got %q", want, body["message"])
	}
}
