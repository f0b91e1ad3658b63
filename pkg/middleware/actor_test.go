package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelierops/pipeline-engine/pkg/models"
)

func TestActor_SetsContextFromHeader(t *testing.T) {
	var gotActor string
	var gotOK bool
	handler := Actor()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, gotOK = models.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/records", nil)
	req.Header.Set(ActorHeader, "  reviewer@atelier.test  ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !gotOK {
		t.Fatal("expected actor in context")
	}
	if gotActor != "reviewer@atelier.test" {
		t.Errorf("expected trimmed actor, got %q", gotActor)
	}
}

func TestActor_MissingHeaderLeavesContextBare(t *testing.T) {
	var gotOK bool
	handler := Actor()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotOK = models.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotOK {
		t.Error("expected no actor in context")
	}
}

func TestActor_BlankHeaderIgnored(t *testing.T) {
	var gotOK bool
	handler := Actor()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotOK = models.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/records", nil)
	req.Header.Set(ActorHeader, "   ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotOK {
		t.Error("expected whitespace-only header to be ignored")
	}
}
