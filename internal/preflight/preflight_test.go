package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"carousel/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckAutomationService_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckAutomationService(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckAutomationService_LoginPageStillCountsAsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckAutomationService(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected 401 to count as reachable, got: %s", result.Detail)
	}
}

func TestCheckAutomationService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckAutomationService(context.Background(), srv.URL)
	if result.Passed {
		t.Fatal("expected failure for 5xx response")
	}
}

func TestCheckAutomationService_MissingURL(t *testing.T) {
	result := CheckAutomationService(context.Background(), "")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_HealthyConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.InboundDir = t.TempDir()
	cfg.Paths.DownloadsDir = t.TempDir()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.OutboundDir = t.TempDir()
	cfg.Automation.BaseURL = srv.URL

	results := RunAll(context.Background(), &cfg)
	if !Passed(results) {
		for _, r := range results {
			if !r.Passed {
				t.Errorf("check %q failed: %s", r.Name, r.Detail)
			}
		}
	}
}

func TestRunAll_SkipsOutboundWhenUnset(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.InboundDir = t.TempDir()
	cfg.Paths.DownloadsDir = t.TempDir()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.OutboundDir = ""
	cfg.Automation.BaseURL = ""

	results := RunAll(context.Background(), &cfg)
	for _, r := range results {
		if r.Name == "Outbound directory" {
			t.Fatal("did not expect outbound check without a configured directory")
		}
	}
}
