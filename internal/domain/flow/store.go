package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by repositories when a flow id is unknown.
var ErrNotFound = errors.New("flow not found")

// SynthesizedMarker tags machine generated audio in file names and display names.
// Assets without it are user supplied and are never removed automatically.
const SynthesizedMarker = "__tts__"

// IsSynthesized reports whether the asset was produced by speech synthesis.
func (a *Audio) IsSynthesized() bool {
	if a == nil {
		return false
	}
	return strings.Contains(a.Path, SynthesizedMarker) || strings.Contains(a.DisplayName, SynthesizedMarker)
}

// SynthesizedAssetName builds the file name for generated audio of a step.
func SynthesizedAssetName(stepID, voice, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp3"
	}
	return fmt.Sprintf("%s%s%s.%s", stepID, SynthesizedMarker, voice, ext)
}

// Repository loads and saves whole flows.
type Repository interface {
	Load(ctx context.Context, id string) (*Flow, error)
	Save(ctx context.Context, flow *Flow) error
}

// AssetStore manages media files that belong to a flow. Paths handed to steps are relative
// to the flow; Exists takes the absolute form produced by AbsolutePath.
type AssetStore interface {
	PutAsset(ctx context.Context, flowID, name string, data []byte, contentType string) (string, error)
	DeleteAsset(ctx context.Context, flowID, path string) error
	AbsolutePath(flowID, relativePath string) string
	Exists(ctx context.Context, path string) bool
}

// Store is the persistence collaborator used by the engine.
type Store interface {
	Repository
	AssetStore
}

type store struct {
	Repository
	AssetStore
}

// NewStore combines a document repository with an asset store.
func NewStore(repo Repository, assets AssetStore) Store {
	return store{Repository: repo, AssetStore: assets}
}
