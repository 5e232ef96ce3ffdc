package modelstore

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

// Encode serializes a model snapshot.
func Encode(model *knn.Model) ([]byte, error) {
	raw, err := json.Marshal(model.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode rebuilds a model from Encode output.
func Decode(data []byte) (*knn.Model, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "modelstore", "decode", "model blob is not valid zstd", err)
	}
	var snap knn.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, services.Wrap(services.ErrValidation, "modelstore", "decode", "model blob is not a snapshot", err)
	}
	return knn.FromSnapshot(snap)
}
