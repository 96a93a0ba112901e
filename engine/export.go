package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"samplemind/features"
	"samplemind/utils"
)

// Export writes records to path as a JSON list. The file is replaced
// atomically.
func Export(records []*features.Record, path string) error {
	if records == nil {
		records = []*features.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling records: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("error creating export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing export file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Import reads a list written by Export.
func Import(path string) ([]*features.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading records file: %w", err)
	}
	if len(data) == 0 {
		return []*features.Record{}, nil
	}

	var records []*features.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("error unmarshaling records: %w", err)
	}
	return records, nil
}
