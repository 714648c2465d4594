package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(_ context.Context) error { return p.err }

func healthRouter(deps map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHealthController(deps).RegisterRoutes(router)
	return router
}

func TestHealthAllDependenciesUp(t *testing.T) {
	router := healthRouter(map[string]Pinger{
		"mysql": &fakePinger{},
		"redis": &fakePinger{},
	})

	w := doGet(router, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Dependencies["mysql"] != "ok" || body.Dependencies["redis"] != "ok" {
		t.Fatalf("dependencies = %v", body.Dependencies)
	}
}

func TestHealthFailingDependencyIs503(t *testing.T) {
	router := healthRouter(map[string]Pinger{
		"mysql": &fakePinger{},
		"kafka": &fakePinger{err: errors.New("broker unreachable")},
	})

	w := doGet(router, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Dependencies["kafka"] != "broker unreachable" {
		t.Fatalf("dependencies = %v", body.Dependencies)
	}
}
