// Package errors defines the provider failure taxonomy and its classifier.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Kind is the closed set of provider failure categories.
type Kind string

const (
	KindAuthentication     Kind = "authentication"
	KindRateLimit          Kind = "rate_limit"
	KindNetwork            Kind = "network"
	KindQuota              Kind = "quota"
	KindInvalidInput       Kind = "invalid_input"
	KindServiceUnavailable Kind = "service_unavailable"
	KindTimeout            Kind = "timeout"
	KindUnknown            Kind = "unknown"
)

var kindMessages = map[Kind]string{
	KindAuthentication:     "The assistant could not authenticate with the inference provider. Check the API key.",
	KindRateLimit:          "Too many requests were sent to the assistant. Wait a moment and try again.",
	KindNetwork:            "The assistant could not be reached. Check the network connection and try again.",
	KindQuota:              "The inference provider quota is exhausted.",
	KindInvalidInput:       "The request was rejected by the inference provider as invalid.",
	KindServiceUnavailable: "The inference provider is temporarily unavailable. Try again later.",
	KindTimeout:            "The inference provider took too long to answer.",
	KindUnknown:            "The assistant failed with an unexpected error.",
}

// Message returns the fixed user-facing message of the kind.
func (k Kind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return kindMessages[KindUnknown]
}

// ProviderError is a classified failure of the inference or speech provider.
type ProviderError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Diagnostic string `json:"diagnostic,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Cause      error  `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Diagnostic != "" {
		fmt.Fprintf(&b, " (%s)", e.Diagnostic)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates an error of the given kind with its default message.
func NewProviderError(kind Kind, diagnostic string) *ProviderError {
	return &ProviderError{Kind: kind, Message: kind.Message(), Diagnostic: diagnostic}
}

// WithCause adds an underlying cause to the error.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	e.Cause = cause
	return e
}

// ClassificationRule maps an arbitrary error to a kind when Match succeeds.
type ClassificationRule struct {
	Match func(error) bool
	Kind  Kind
}

// Classifier turns HTTP statuses, bodies and Go errors into ProviderErrors.
type Classifier struct {
	rules []ClassificationRule
}

// NewClassifier creates a classifier with the default transport rules.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.addDefaultRules()
	return c
}

func (c *Classifier) addDefaultRules() {
	c.rules = append(c.rules, ClassificationRule{
		Match: func(err error) bool {
			var netErr net.Error
			return errors.As(err, &netErr)
		},
		Kind: KindNetwork,
	})
	c.rules = append(c.rules, ClassificationRule{
		Match: func(err error) bool {
			var urlErr *url.Error
			return errors.As(err, &urlErr)
		},
		Kind: KindNetwork,
	})
}

// AddRule adds a classification rule evaluated after the defaults.
func (c *Classifier) AddRule(rule ClassificationRule) {
	c.rules = append(c.rules, rule)
}

// FromStatus classifies a non-2xx provider response.
func (c *Classifier) FromStatus(code int, body []byte) *ProviderError {
	diagnostic := providerDiagnostic(body)
	if isQuotaBody(body) {
		pe := NewProviderError(KindQuota, diagnostic)
		pe.StatusCode = code
		return pe
	}

	var kind Kind
	switch code {
	case http.StatusUnauthorized:
		kind = KindAuthentication
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	case http.StatusBadRequest:
		kind = KindInvalidInput
	case http.StatusServiceUnavailable:
		kind = KindServiceUnavailable
	case http.StatusRequestTimeout:
		kind = KindTimeout
	default:
		kind = KindUnknown
		if diagnostic == "" {
			diagnostic = fmt.Sprintf("status %d", code)
		} else {
			diagnostic = fmt.Sprintf("status %d: %s", code, diagnostic)
		}
	}
	pe := NewProviderError(kind, diagnostic)
	pe.StatusCode = code
	return pe
}

// FromTransport classifies a failure that produced no response. Such failures are always
// network errors regardless of any status the client may have recorded.
func (c *Classifier) FromTransport(err error) *ProviderError {
	diagnostic := ""
	if err != nil {
		diagnostic = err.Error()
	}
	return NewProviderError(KindNetwork, diagnostic).WithCause(err)
}

// Classify passes existing ProviderErrors through and applies the rules to anything else.
func (c *Classifier) Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	for _, rule := range c.rules {
		if rule.Match(err) {
			return NewProviderError(rule.Kind, err.Error()).WithCause(err)
		}
	}
	return NewProviderError(KindUnknown, err.Error()).WithCause(err)
}

// KindOf returns the kind of a ProviderError in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries a ProviderError of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}

// UserMessage returns text safe to show to an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return KindUnknown.Message()
}

type providerErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func decodeBody(body []byte) *providerErrorBody {
	if len(body) == 0 {
		return nil
	}
	var parsed providerErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == nil {
		return nil
	}
	return &parsed
}

func isQuotaBody(body []byte) bool {
	parsed := decodeBody(body)
	if parsed == nil {
		return false
	}
	if parsed.Error.Type == "insufficient_quota" {
		return true
	}
	code, ok := parsed.Error.Code.(string)
	return ok && code == "insufficient_quota"
}

func providerDiagnostic(body []byte) string {
	if parsed := decodeBody(body); parsed != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return raw
}
