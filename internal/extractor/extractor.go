package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"shapelearner/internal/config"
	"shapelearner/internal/services"
)

// Request describes the views of one part.
type Request struct {
	PartID int64    `json:"partID"`
	Label  string   `json:"label,omitempty"`
	Images []string `json:"images"`
}

// Response names the feature row produced for the part. Features is set when
// the extractor returns the vector instead of writing it to the store itself.
type Response struct {
	FeatureID int64     `json:"featureID"`
	Features  []float64 `json:"features,omitempty"`
}

// Extractor produces features from captured views.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Response, error)
}

// Prober is implemented by extractors that can check reachability without
// doing work.
type Prober interface {
	Probe(ctx context.Context) error
}

// New builds the extractor selected by cfg.Extractor. It returns nil when
// extraction is disabled.
func New(cfg config.Extractor) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "":
		return nil, nil
	case "http":
		return NewHTTPClient(cfg), nil
	case "command":
		client, err := NewCommandClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "extractor", "init",
			fmt.Sprintf("unknown extractor mode %q", cfg.Mode), nil)
	}
}

func validateRequest(req Request) error {
	if req.PartID < 0 {
		return services.Wrap(services.ErrValidation, "extractor", "extract", "part id can't be negative", nil)
	}
	if len(req.Images) == 0 {
		return services.Wrap(services.ErrValidation, "extractor", "extract", "no images to extract from", nil)
	}
	return nil
}

func decodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, services.Wrap(services.ErrExternalTool, "extractor", "decode response", "malformed extractor output", err)
	}
	if resp.FeatureID <= 0 {
		return Response{}, services.Wrap(services.ErrExternalTool, "extractor", "decode response",
			fmt.Sprintf("extractor returned feature id %d", resp.FeatureID), nil)
	}
	return resp, nil
}
