package extractor_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"shapelearner/internal/config"
	"shapelearner/internal/extractor"
	"shapelearner/internal/services"
)

func httpConfig(url string) config.Extractor {
	return config.Extractor{
		Mode:           "http",
		URL:            url,
		TimeoutSeconds: 5,
		RetryAttempts:  3,
	}
}

func TestHTTPExtractRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req extractor.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.PartID != 12 || len(req.Images) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(extractor.Response{FeatureID: 40})
	}))
	defer srv.Close()

	client := extractor.NewHTTPClient(httpConfig(srv.URL), extractor.WithRetryDelay(time.Millisecond, 2*time.Millisecond))
	resp, err := client.Extract(context.Background(), extractor.Request{PartID: 12, Images: []string{"a.png", "b.png"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.FeatureID != 40 {
		t.Fatalf("expected feature id 40, got %d", resp.FeatureID)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPExtractDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad images", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := extractor.NewHTTPClient(httpConfig(srv.URL), extractor.WithRetryDelay(time.Millisecond, time.Millisecond))
	_, err := client.Extract(context.Background(), extractor.Request{PartID: 1, Images: []string{"a.png"}})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestHTTPExtractRejectsMissingFeatureID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"featureID":0}`))
	}))
	defer srv.Close()

	client := extractor.NewHTTPClient(httpConfig(srv.URL))
	_, err := client.Extract(context.Background(), extractor.Request{PartID: 1, Images: []string{"a.png"}})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	client := extractor.NewHTTPClient(httpConfig(srv.URL))
	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	srv.Close()
	if err := client.Probe(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool after close, got %v", err)
	}
}

func TestExtractValidatesRequest(t *testing.T) {
	client := extractor.NewHTTPClient(httpConfig("http://127.0.0.1:1"))
	_, err := client.Extract(context.Background(), extractor.Request{PartID: 1})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

type fakeExecutor struct {
	binary string
	args   []string
	out    []byte
	err    error
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.binary = binary
	f.args = args
	return f.out, f.err
}

func TestCommandExtract(t *testing.T) {
	exec := &fakeExecutor{out: []byte(`{"featureID": 7, "features": [0.5, 1.5]}`)}
	client, err := extractor.NewCommandClient(config.Extractor{
		Binary: "hu-moments",
		Args:   []string{"--mode", "fast"},
	}, extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandClient: %v", err)
	}

	resp, err := client.Extract(context.Background(), extractor.Request{PartID: 3, Label: "gear", Images: []string{"x.png", "y.png"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.FeatureID != 7 || len(resp.Features) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := []string{"--mode", "fast", "--part", "3", "--label", "gear", "x.png", "y.png"}
	if exec.binary != "hu-moments" || !slices.Equal(exec.args, want) {
		t.Fatalf("unexpected invocation %s %v", exec.binary, exec.args)
	}
}

func TestCommandExtractFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exit status 2")}
	client, err := extractor.NewCommandClient(config.Extractor{Binary: "hu-moments"}, extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandClient: %v", err)
	}
	_, err = client.Extract(context.Background(), extractor.Request{PartID: 3, Images: []string{"x.png"}})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestNewSelectsMode(t *testing.T) {
	ext, err := extractor.New(config.Extractor{})
	if err != nil || ext != nil {
		t.Fatalf("expected disabled extractor, got %v, %v", ext, err)
	}
	if _, err := extractor.New(config.Extractor{Mode: "grpc"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := extractor.New(config.Extractor{Mode: "command"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing binary, got %v", err)
	}
	ext, err = extractor.New(config.Extractor{Mode: "HTTP", URL: "http://localhost:9"})
	if err != nil {
		t.Fatalf("New http: %v", err)
	}
	if _, ok := ext.(*extractor.HTTPClient); !ok {
		t.Fatalf("expected HTTPClient, got %T", ext)
	}
}
