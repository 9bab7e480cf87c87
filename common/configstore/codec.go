package configstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pubgate/gateway/common/models"
)

// EncodeConfig serializes a config document to its compact wire form:
// JSON wrapped in gzip. Edge nodes read many of these records, so the
// stored blob is size-optimized.
func EncodeConfig(cfg *models.CDNConfig) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress config: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress config: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeConfig reverses EncodeConfig.
func DecodeConfig(body []byte) (*models.CDNConfig, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decompress config: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress config: %w", err)
	}

	var cfg models.CDNConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
