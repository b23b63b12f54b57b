package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

var ErrNoProvider = errors.New("no speech service configured: set GEMINI_API_KEY, GROQ_API_KEY or OPENAI_API_KEY")

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
	SentBytes   int64
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Part is one element of a request: either text or inline binary data
// with its media type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func TextPart(s string) Part { return Part{Text: s} }

func AudioPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

func hasAudio(parts []Part) bool {
	for _, p := range parts {
		if len(p.Data) > 0 {
			return true
		}
	}
	return false
}

func joinText(parts []Part) string {
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// Generator sends one request to a generative speech/text service and
// returns its text answer. There are no retries.
type Generator interface {
	Name() string
	Generate(ctx context.Context, model string, parts []Part) (string, error)
}

// Models is the pair of model names used for the two pipeline stages.
type Models struct {
	Transcribe string
	Polish     string
}

// DefaultModels returns the models used when none are configured.
func DefaultModels(provider string) Models {
	switch provider {
	case ProviderGroq:
		return Models{Transcribe: "whisper-large-v3-turbo", Polish: "llama-3.3-70b-versatile"}
	case ProviderOpenAI:
		return Models{Transcribe: "gpt-4o-transcribe", Polish: "gpt-4o-mini"}
	default:
		return Models{Transcribe: "gemini-2.5-flash", Polish: "gemini-2.5-flash"}
	}
}

// New builds the backend for provider.
func New(ctx context.Context, provider, apiKey string) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: missing API key", provider)
	}
	switch provider {
	case ProviderGemini:
		return NewGemini(ctx, apiKey)
	case ProviderGroq:
		return NewGroq(apiKey), nil
	case ProviderOpenAI:
		return NewOpenAI(apiKey), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

// KeyFromEnv returns the conventional API key for provider.
func KeyFromEnv(provider string) string {
	switch provider {
	case ProviderGemini:
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	case ProviderGroq:
		return os.Getenv("GROQ_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// Detect picks the first provider with a key in the environment,
// preferring Gemini.
func Detect() (provider, apiKey string, err error) {
	for _, p := range []string{ProviderGemini, ProviderGroq, ProviderOpenAI} {
		if k := KeyFromEnv(p); k != "" {
			return p, k, nil
		}
	}
	return "", "", ErrNoProvider
}
