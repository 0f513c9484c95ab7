package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SidecarPath returns the JSON path sharing wavPath's basename.
func SidecarPath(wavPath string) string {
	return strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".json"
}

// Marshal encodes rec as indented JSON.
func Marshal(rec *Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode sidecar: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadSidecar loads a sidecar written by a previous run.
func ReadSidecar(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode sidecar %s: %w", path, err)
	}
	return &rec, nil
}
