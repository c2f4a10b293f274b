package llmprovider

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/llm"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	speechPath          = "/v1/audio/speech"
)

// Config holds the provider endpoint settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	SpeechTimeout time.Duration
}

// Client implements llm.Provider and llm.SpeechProvider against an OpenAI compatible API.
type Client struct {
	httpClient *resty.Client
	classifier *domainerrors.Classifier
	cfg        Config
	log        zerolog.Logger
}

// NewClient creates a Resty-backed client. Requests are logged at debug level with their latency.
func NewClient(cfg Config, classifier *domainerrors.Classifier, log zerolog.Logger) *Client {
	if classifier == nil {
		classifier = domainerrors.NewClassifier()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = 2 * cfg.Timeout
	}
	log = log.With().Str("component", "llmprovider").Logger()

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Dur("latency", resp.Time()).
			Msg("provider request")
		return nil
	})

	return &Client{
		httpClient: httpClient,
		classifier: classifier,
		cfg:        cfg,
		log:        log,
	}
}

// CreateChatCompletion calls /v1/chat/completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var completion llm.ChatCompletionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&completion).
		Post(chatCompletionsPath)
	if err != nil {
		return nil, c.classifier.FromTransport(err)
	}
	if resp.IsError() {
		pe := c.classifier.FromStatus(resp.StatusCode(), resp.Body())
		c.log.Warn().Int("status", resp.StatusCode()).Str("kind", string(pe.Kind)).Str("diagnostic", pe.Diagnostic).Msg("chat completion failed")
		return nil, pe
	}
	return &completion, nil
}

// CreateSpeech calls /v1/audio/speech and returns the raw audio bytes.
func (c *Client) CreateSpeech(ctx context.Context, req llm.SpeechRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SpeechTimeout)
	defer cancel()

	body := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Input,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetHeader("Accept", "*/*").
		Post(speechPath)
	if err != nil {
		return nil, c.classifier.FromTransport(err)
	}
	if resp.IsError() {
		pe := c.classifier.FromStatus(resp.StatusCode(), resp.Body())
		c.log.Warn().Int("status", resp.StatusCode()).Str("kind", string(pe.Kind)).Msg("speech synthesis failed")
		return nil, pe
	}
	audio := resp.Body()
	if len(audio) == 0 {
		return nil, domainerrors.NewProviderError(domainerrors.KindUnknown, "provider returned empty audio")
	}
	return audio, nil
}

var (
	_ llm.Provider       = (*Client)(nil)
	_ llm.SpeechProvider = (*Client)(nil)
)
