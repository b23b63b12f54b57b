package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestExtension(t *testing.T) {
	for _, tt := range []struct{ input, want string }{
		{"audio/flac", "flac"},
		{"audio/wav", "wav"},
		{"audio/webm;codecs=opus", "webm"},
		{"audio/mpeg", "mp3"},
		{"application/octet-stream", "bin"},
	} {
		t.Run(tt.input, func(t *testing.T) {
			if got := extension(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func newTestCompat(t *testing.T, handler http.HandlerFunc) *OpenAICompat {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newOpenAICompat("test", srv.URL, "secret")
}

func TestOpenAICompatTranscribe(t *testing.T) {
	o := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-large-v3-turbo" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("prompt"); got != "transcribe verbatim" {
			t.Errorf("prompt = %q", got)
		}
		if got := r.FormValue("language"); got != "de" {
			t.Errorf("language = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "fLaCdata" || hdr.Filename != "audio.flac" {
			t.Errorf("file = %q (%s)", data, hdr.Filename)
		}
		w.Write([]byte(`{"text":"hello there"}`))
	})
	o.SetLanguage("de")

	got, err := o.Generate(context.Background(), "whisper-large-v3-turbo", []Part{
		TextPart("transcribe verbatim"),
		AudioPart([]byte("fLaCdata"), "audio/flac"),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "hello there" {
		t.Errorf("text = %q", got)
	}
	if o.client.Last() == nil {
		t.Error("no network metrics recorded")
	}
}

func TestOpenAICompatChat(t *testing.T) {
	o := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Model    string        `json:"model"`
			Messages []chatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Model != "llama" || len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Raw transcription") {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"# Title\nbody"}}]}`))
	})

	got, err := o.Generate(context.Background(), "llama", []Part{TextPart("Raw transcription:\nhi")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "# Title\nbody" {
		t.Errorf("text = %q", got)
	}
}

func TestOpenAICompatAPIError(t *testing.T) {
	o := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining-requests", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	})
	_, err := o.Generate(context.Background(), "m", []Part{TextPart("x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.RateLimit != "0/?" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestTracedHTTPClientRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewTracedClient()
	resp, err := c.HTTPClient().Post(srv.URL, "text/plain", strings.NewReader("abc"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	m := c.Last()
	if m == nil || m.Total <= 0 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.SentBytes != 3 {
		t.Errorf("SentBytes = %d", m.SentBytes)
	}
}

func TestDetect(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(k, "")
	}
	if _, _, err := Detect(); !errors.Is(err, ErrNoProvider) {
		t.Errorf("Detect with no keys = %v", err)
	}

	t.Setenv("GROQ_API_KEY", "g")
	t.Setenv("GOOGLE_API_KEY", "google")
	p, k, err := Detect()
	if err != nil || p != ProviderGemini || k != "google" {
		t.Errorf("Detect = %q %q %v, want gemini first", p, k, err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), "deepspeech", "k"); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(context.Background(), ProviderGroq, ""); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestFakeRoutesByContent(t *testing.T) {
	f := &Fake{Transcript: "raw", Polished: "# Done", PolishErr: nil}
	got, _ := f.Generate(context.Background(), "m", []Part{TextPart("i"), AudioPart([]byte{1}, "audio/wav")})
	if got != "raw" {
		t.Errorf("audio request = %q", got)
	}
	got, _ = f.Generate(context.Background(), "m", []Part{TextPart("p")})
	if got != "# Done" {
		t.Errorf("text request = %q", got)
	}
	if len(f.Calls()) != 2 {
		t.Errorf("calls = %d", len(f.Calls()))
	}
}
