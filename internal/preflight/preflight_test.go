package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"shapelearner/internal/config"
	"shapelearner/internal/extractor"
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

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("out", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("out", dir, ^uint64(0)); result.Passed {
		t.Fatal("expected failure when requiring all addressable bytes")
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestCheckPing(t *testing.T) {
	if result := CheckPing(context.Background(), "store", stubPinger{}); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckPing(context.Background(), "store", stubPinger{err: errors.New("connection refused")})
	if result.Passed || result.Detail != "connection refused" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result := CheckPing(context.Background(), "store", stubPinger{err: context.DeadlineExceeded}); result.Detail != "check timed out" {
		t.Fatalf("unexpected timeout detail %q", result.Detail)
	}
}

func TestCheckExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ext := extractor.NewHTTPClient(config.Extractor{URL: srv.URL, TimeoutSeconds: 2})
	if result := CheckExtractor(context.Background(), "http", ext); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckExtractor(context.Background(), "http", nil); result.Passed {
		t.Fatal("expected failure for missing extractor")
	}
}

func TestRunAllSkipsDisabledExtractor(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.LockDir = base
	cfg.Paths.OutputDir = base

	results := RunAll(context.Background(), &cfg, Targets{Jobs: stubPinger{}, Features: stubPinger{err: errors.New("down")}})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["Job store"].Passed {
		t.Fatalf("expected job store to pass: %+v", byName["Job store"])
	}
	if r, ok := byName["Feature store (sqlite)"]; !ok || r.Passed {
		t.Fatalf("expected feature store failure, got %+v", r)
	}
	for _, r := range Failed(results) {
		if r.Passed {
			t.Fatalf("Failed returned passing result %+v", r)
		}
	}
}
