// Package translation translates the text of a flow through the inference provider and caches
// the results by content.
package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/cache"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/llm"
)

const (
	// PreviewSteps is the number of leading steps translated in preview mode.
	PreviewSteps = 3

	NamespaceFull    = "translation"
	NamespacePreview = "translation-preview"
)

var (
	ErrInvalidLanguage = errors.New("invalid target language")
	ErrMalformedReply  = errors.New("malformed translation reply")
)

// Request selects the target language and mode.
type Request struct {
	TargetLanguage string `json:"target_language"`
	Preview        bool   `json:"preview"`
}

// StepTranslation is the translated description of one step.
type StepTranslation struct {
	StepID      string `json:"step_id"`
	Description string `json:"description"`
}

// Translation is a translated copy of the flow's text.
type Translation struct {
	Language    string            `json:"language"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Steps       []StepTranslation `json:"steps"`
	Preview     bool              `json:"preview"`
}

// Result wraps a translation with its cache provenance.
type Result struct {
	Translation Translation `json:"translation"`
	Cached      bool        `json:"cached"`
}

// Entry is the cached form. It is keyed by content, so it carries texts only.
type Entry struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

type Service interface {
	Translate(ctx context.Context, f *flow.Flow, req Request) (*Result, error)
}

type service struct {
	provider llm.Provider
	model    string
	full     *cache.Cache[Entry]
	preview  *cache.Cache[Entry]
	log      zerolog.Logger
}

// NewService creates the translation service. The two caches hold full and preview results.
func NewService(provider llm.Provider, model string, full, preview *cache.Cache[Entry], log zerolog.Logger) Service {
	return &service{
		provider: provider,
		model:    model,
		full:     full,
		preview:  preview,
		log:      log.With().Str("component", "translation").Logger(),
	}
}

type payload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

func (s *service) Translate(ctx context.Context, f *flow.Flow, req Request) (*Result, error) {
	tag, err := language.Parse(strings.TrimSpace(req.TargetLanguage))
	if err != nil || strings.TrimSpace(req.TargetLanguage) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, req.TargetLanguage)
	}
	target := tag.String()

	ctx, span := otel.Tracer("flow-api/translation").Start(ctx, "translation.translate")
	defer span.End()
	span.SetAttributes(attribute.String("translation.language", target), attribute.Bool("translation.preview", req.Preview))

	steps := f.OrderedSteps()
	if req.Preview && len(steps) > PreviewSteps {
		steps = steps[:PreviewSteps]
	}
	source := payload{Title: f.Title, Description: f.Description, Steps: make([]string, len(steps))}
	for i, step := range steps {
		source.Steps[i] = step.Description
	}

	c, mode := s.full, "full"
	if req.Preview {
		c, mode = s.preview, "preview"
	}
	parts := append([]string{source.Title, source.Description}, source.Steps...)
	parts = append(parts, target, mode)
	key := c.Key(parts...)

	if entry, hit := c.Get(ctx, key); hit && len(entry.Steps) == len(steps) {
		span.SetAttributes(attribute.Bool("translation.cached", true))
		return &Result{Translation: assemble(target, req.Preview, entry, steps), Cached: true}, nil
	}

	entry, err := s.requestTranslation(ctx, source, tag)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, *entry); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache translation")
	}
	s.log.Info().Str("flow_id", f.ID).Str("language", target).Str("mode", mode).Int("steps", len(steps)).Msg("flow translated")
	return &Result{Translation: assemble(target, req.Preview, *entry, steps)}, nil
}

func (s *service) requestTranslation(ctx context.Context, source payload, tag language.Tag) (*Entry, error) {
	body, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("encode translation payload: %w", err)
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		name = tag.String()
	}

	instructions := fmt.Sprintf("Translate every string value of the JSON object from the user into %s (%s). "+
		"Keep the same keys and the same number of steps in the same order. "+
		"Reply with the JSON object only.", name, tag.String())

	resp, err := s.provider.CreateChatCompletion(ctx, llm.ChatCompletionRequest{
		Model: s.model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: instructions},
			{Role: llm.RoleUser, Content: string(body)},
		},
	})
	if err != nil {
		return nil, err
	}
	msg, found := resp.FirstMessage()
	if !found {
		return nil, domainerrors.NewProviderError(domainerrors.KindUnknown, "provider returned no choices")
	}

	var out payload
	if err := json.Unmarshal([]byte(stripFences(msg.Content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if len(out.Steps) != len(source.Steps) {
		return nil, fmt.Errorf("%w: expected %d steps, got %d", ErrMalformedReply, len(source.Steps), len(out.Steps))
	}
	return &Entry{Title: out.Title, Description: out.Description, Steps: out.Steps}, nil
}

func assemble(lang string, preview bool, entry Entry, steps []*flow.Step) Translation {
	t := Translation{
		Language:    lang,
		Title:       entry.Title,
		Description: entry.Description,
		Steps:       make([]StepTranslation, len(steps)),
		Preview:     preview,
	}
	for i, step := range steps {
		t.Steps[i] = StepTranslation{StepID: step.ID, Description: entry.Steps[i]}
	}
	return t
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
