package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/casedocflow/internal/config"
	"github.com/Lllllllleong/casedocflow/internal/models"
)

const mappingFile = `{
  "version": "test",
  "documents": {
    "sc100": {
      "template": "sc100",
      "fields": [{"sourcePath": "plaintiffs[*].name.full", "destinationField": "PlaintiffName", "transform": "join"}]
    }
  }
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "mappings.json")
	if err := os.WriteFile(mappingPath, []byte(mappingFile), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Templates.Dir = filepath.Join(dir, "templates")
	cfg.Mapping.File = mappingPath
	cfg.Status.Backend = "memory"
	cfg.Status.TTL = time.Minute
	cfg.Status.SweepInterval = time.Minute
	cfg.Status.HeartbeatInterval = time.Second
	cfg.Upload.MaxRetries = 1
	cfg.Upload.Timeout = time.Second
	cfg.Artifacts.Dir = filepath.Join(dir, "artifacts")
	cfg.Telemetry.ServiceName = "casedocflow-test"
	cfg.Telemetry.MetricsEnabled = true
	return cfg
}

func TestNew_WiresServer(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	rec := httptest.NewRecorder()
	a.Server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/document-types", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		DocumentTypes []models.DocumentTypeInfo `json:"documentTypes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.DocumentTypes) != 1 || body.DocumentTypes[0].DocumentType != "sc100" {
		t.Errorf("document types = %+v", body.DocumentTypes)
	}

	rec = httptest.NewRecorder()
	a.Server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestNew_MissingMappingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mapping.File = filepath.Join(t.TempDir(), "absent.json")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("New() succeeded without a mapping file")
	}
}

func TestNotifier_NoneConfigured(t *testing.T) {
	a := &App{Config: testConfig(t)}
	n, err := a.notifier(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != nil {
		t.Errorf("notifier = %v, want nil", n)
	}
}
