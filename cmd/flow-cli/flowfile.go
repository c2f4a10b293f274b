package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/janhq/flow-api/internal/domain/flow"
)

type fileFormat string

const (
	formatJSON fileFormat = "json"
	formatYAML fileFormat = "yaml"
)

func parseFormat(raw string) (fileFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		return formatJSON, nil
	case "yaml", "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use json or yaml)", raw)
	}
}

// detectFormat picks the format from the file extension, falling back to sniffing the content.
func detectFormat(path string, data []byte) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".json":
		return formatJSON
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return formatJSON
	}
	return formatYAML
}

func readFlowFile(path string) (*flow.Flow, fileFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	format := detectFormat(path, data)
	f, err := decodeFlow(data, format)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", path, err)
	}
	return f, format, nil
}

func decodeFlow(data []byte, format fileFormat) (*flow.Flow, error) {
	var f flow.Flow
	var err error
	if format == formatYAML {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, err
	}
	if f.ID == "" {
		fresh := flow.New(f.Title)
		f.ID = fresh.ID
		if f.Version == 0 {
			f.Version = fresh.Version
		}
	}
	if f.Sections == nil {
		f.Sections = []flow.Section{}
	}
	if f.Steps == nil {
		f.Steps = []flow.Step{}
	}
	return &f, nil
}

func encode(v any, format fileFormat) ([]byte, error) {
	if format == formatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func writeFlowFile(path string, f *flow.Flow, format fileFormat) error {
	data, err := encode(f, format)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
