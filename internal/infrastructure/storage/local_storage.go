package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/janhq/flow-api/internal/domain/flow"
)

const (
	documentName = "flow.json"
	assetsDir    = "assets"
)

var errInvalidPath = errors.New("invalid storage path")

// LocalStorage keeps each flow in its own directory: the JSON document plus an assets folder.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, fmt.Errorf("local storage path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalStorage{basePath: basePath, log: logger}, nil
}

func (l *LocalStorage) flowDir(flowID string) (string, error) {
	if flowID == "" || strings.ContainsAny(flowID, `/\`) || flowID == "." || flowID == ".." {
		return "", fmt.Errorf("%w: flow id %q", errInvalidPath, flowID)
	}
	return filepath.Join(l.basePath, flowID), nil
}

func cleanRelative(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errInvalidPath, rel)
	}
	return cleaned, nil
}

// Load reads a flow document.
func (l *LocalStorage) Load(_ context.Context, id string) (*flow.Flow, error) {
	dir, err := l.flowDir(id)
	if err != nil {
		return nil, flow.ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(dir, documentName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, flow.ErrNotFound
		}
		return nil, fmt.Errorf("read flow %s: %w", id, err)
	}
	var f flow.Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode flow %s: %w", id, err)
	}
	return &f, nil
}

// Save writes the document through a temporary file so readers never see a partial write.
func (l *LocalStorage) Save(_ context.Context, f *flow.Flow) error {
	dir, err := l.flowDir(f.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create flow directory: %w", err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode flow %s: %w", f.ID, err)
	}

	tmp, err := os.CreateTemp(dir, documentName+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, documentName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace flow document: %w", err)
	}

	l.log.Debug().Str("flow_id", f.ID).Int("version", f.Version).Msg("flow saved")
	return nil
}

// PutAsset stores an asset and returns its path relative to the flow.
func (l *LocalStorage) PutAsset(_ context.Context, flowID, name string, data []byte, _ string) (string, error) {
	rel, err := cleanRelative(name)
	if err != nil {
		return "", err
	}
	dir, err := l.flowDir(flowID)
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, assetsDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().Str("flow_id", flowID).Str("asset", rel).Int("bytes", len(data)).Msg("asset stored")
	return filepath.ToSlash(rel), nil
}

// DeleteAsset removes an asset. Removing a file that is already gone is not an error.
func (l *LocalStorage) DeleteAsset(_ context.Context, flowID, path string) error {
	rel, err := cleanRelative(path)
	if err != nil {
		return err
	}
	dir, err := l.flowDir(flowID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, assetsDir, rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

// AbsolutePath resolves a flow-relative asset path on disk.
func (l *LocalStorage) AbsolutePath(flowID, relativePath string) string {
	return filepath.Join(l.basePath, flowID, assetsDir, filepath.FromSlash(relativePath))
}

// Exists reports whether a file exists at an absolute path.
func (l *LocalStorage) Exists(_ context.Context, path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Health checks if the storage directory is writable.
func (l *LocalStorage) Health(context.Context) error {
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}

var (
	_ flow.Repository = (*LocalStorage)(nil)
	_ flow.AssetStore = (*LocalStorage)(nil)
)
