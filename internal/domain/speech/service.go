// Package speech generates narration audio for flow steps and caches the produced assets.
package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/flow-api/internal/domain/cache"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/llm"
	"github.com/janhq/flow-api/internal/infrastructure/metrics"
)

const (
	// DefaultBatchSize is the number of concurrent synthesis requests.
	DefaultBatchSize = 3

	Namespace = "speech"
)

// Config holds the synthesis settings.
type Config struct {
	Model     string
	Voice     string
	Format    string
	BatchSize int
}

// Request selects the voice. Empty uses the configured default.
type Request struct {
	Voice string `json:"voice"`
}

// StepAudio is audio attached to a step by a synthesis run.
type StepAudio struct {
	StepID      string `json:"step_id"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
}

// Result summarizes a synthesis run.
type Result struct {
	Generated []StepAudio `json:"generated"`
	Failed    int         `json:"failed"`
	Cached    bool        `json:"cached"`
}

// Entry is the cached value: generated assets by step id.
type Entry struct {
	FlowID string                `json:"flow_id"`
	Assets map[string]flow.Audio `json:"assets"`
}

// AssetValidator rejects cache entries that reference a file which no longer exists.
func AssetValidator(assets flow.AssetStore) cache.Validator[Entry] {
	return func(ctx context.Context, entry Entry) bool {
		for _, audio := range entry.Assets {
			if !assets.Exists(ctx, assets.AbsolutePath(entry.FlowID, audio.Path)) {
				return false
			}
		}
		return true
	}
}

type Service interface {
	Synthesize(ctx context.Context, f *flow.Flow, req Request) (*Result, error)
}

type service struct {
	provider llm.SpeechProvider
	assets   flow.AssetStore
	cache    *cache.Cache[Entry]
	cfg      Config
	log      zerolog.Logger
}

// NewService creates the speech service.
func NewService(provider llm.SpeechProvider, assets flow.AssetStore, c *cache.Cache[Entry], cfg Config, log zerolog.Logger) Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	return &service{
		provider: provider,
		assets:   assets,
		cache:    c,
		cfg:      cfg,
		log:      log.With().Str("component", "speech").Logger(),
	}
}

// needsAudio reports steps without audio and steps whose generated file has disappeared.
func (s *service) needsAudio(ctx context.Context, f *flow.Flow, step *flow.Step) bool {
	if strings.TrimSpace(step.Description) == "" {
		return false
	}
	if step.Audio == nil {
		return true
	}
	return step.Audio.IsSynthesized() && !s.assets.Exists(ctx, s.assets.AbsolutePath(f.ID, step.Audio.Path))
}

func (s *service) Synthesize(ctx context.Context, f *flow.Flow, req Request) (*Result, error) {
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = s.cfg.Voice
	}

	ctx, span := otel.Tracer("flow-api/speech").Start(ctx, "speech.synthesize")
	defer span.End()

	ordered := f.OrderedSteps()
	var pending []*flow.Step
	for _, step := range ordered {
		if s.needsAudio(ctx, f, step) {
			pending = append(pending, step)
		}
	}
	span.SetAttributes(attribute.Int("speech.pending", len(pending)), attribute.String("speech.voice", voice))

	result := &Result{}
	if len(pending) == 0 {
		return result, nil
	}

	parts := []string{f.ID, f.Title, f.Description}
	for _, step := range ordered {
		parts = append(parts, step.Description)
	}
	parts = append(parts, voice, s.cfg.Model, s.cfg.Format)
	key := s.cache.Key(parts...)

	if entry, hit := s.cache.Get(ctx, key); hit {
		for _, step := range pending {
			audio, found := entry.Assets[step.ID]
			if !found {
				continue
			}
			attached := audio
			step.Audio = &attached
			result.Generated = append(result.Generated, StepAudio{StepID: step.ID, Path: audio.Path, DisplayName: audio.DisplayName})
		}
		result.Cached = true
		span.SetAttributes(attribute.Bool("speech.cached", true))
		return result, nil
	}

	entry := Entry{FlowID: f.ID, Assets: map[string]flow.Audio{}}
	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		produced := s.runBatch(ctx, f.ID, voice, batch)

		for i, audio := range produced {
			step := batch[i]
			if audio == nil {
				result.Failed++
				metrics.SpeechItemsTotal.WithLabelValues("failed").Inc()
				continue
			}
			step.Audio = audio
			entry.Assets[step.ID] = *audio
			result.Generated = append(result.Generated, StepAudio{StepID: step.ID, Path: audio.Path, DisplayName: audio.DisplayName})
			metrics.SpeechItemsTotal.WithLabelValues("generated").Inc()
		}
	}

	if len(entry.Assets) > 0 {
		if err := s.cache.Set(ctx, key, entry); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache synthesized audio")
		}
	}
	s.log.Info().
		Str("flow_id", f.ID).
		Int("generated", len(result.Generated)).
		Int("failed", result.Failed).
		Msg("speech synthesis finished")
	return result, nil
}

// runBatch synthesizes one batch concurrently and waits for all of it. Failed items are nil.
func (s *service) runBatch(ctx context.Context, flowID, voice string, batch []*flow.Step) []*flow.Audio {
	produced := make([]*flow.Audio, len(batch))
	var g errgroup.Group
	for i, step := range batch {
		i, step := i, step
		g.Go(func() error {
			audio, err := s.synthesizeStep(ctx, flowID, voice, step)
			if err != nil {
				// Dropped, not retried; siblings keep running.
				s.log.Warn().Err(err).Str("step_id", step.ID).Msg("step synthesis failed")
				return nil
			}
			produced[i] = audio
			return nil
		})
	}
	_ = g.Wait()
	return produced
}

func (s *service) synthesizeStep(ctx context.Context, flowID, voice string, step *flow.Step) (*flow.Audio, error) {
	data, err := s.provider.CreateSpeech(ctx, llm.SpeechRequest{
		Model:  s.cfg.Model,
		Voice:  voice,
		Input:  step.Description,
		Format: s.cfg.Format,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio for step %s", step.ID)
	}

	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" || mtype.Is("application/octet-stream") {
		ext = "." + s.cfg.Format
	}
	name := flow.SynthesizedAssetName(step.ID, voice, ext)
	path, err := s.assets.PutAsset(ctx, flowID, name, data, mtype.String())
	if err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}
	return &flow.Audio{Path: path, DisplayName: flow.Truncate(step.Description, 40) + " " + flow.SynthesizedMarker}, nil
}
