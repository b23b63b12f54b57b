package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
)

// OpenAICompat speaks the OpenAI REST dialect. Requests carrying audio go
// to the transcription endpoint with the instruction text as the prompt;
// text-only requests go to chat completions.
type OpenAICompat struct {
	name    string
	baseURL string
	apiKey  string
	lang    string
	client  *TracedClient
}

func NewGroq(apiKey string) *OpenAICompat {
	return newOpenAICompat(ProviderGroq, "https://api.groq.com/openai/v1", apiKey)
}

func NewOpenAI(apiKey string) *OpenAICompat {
	return newOpenAICompat(ProviderOpenAI, "https://api.openai.com/v1", apiKey)
}

func newOpenAICompat(name, baseURL, apiKey string) *OpenAICompat {
	return &OpenAICompat{name: name, baseURL: baseURL, apiKey: apiKey, client: NewTracedClient()}
}

func (o *OpenAICompat) Name() string { return o.name }

func (o *OpenAICompat) SetLanguage(lang string) { o.lang = lang }

func (o *OpenAICompat) Warm() { o.client.Warm(o.baseURL) }

func (o *OpenAICompat) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	if hasAudio(parts) {
		return o.transcribe(ctx, model, parts)
	}
	return o.chat(ctx, model, joinText(parts))
}

func extension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "flac"):
		return "flac"
	case strings.Contains(mimeType, "wav"):
		return "wav"
	case strings.Contains(mimeType, "webm"):
		return "webm"
	case strings.Contains(mimeType, "ogg"):
		return "ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "mp3"
	}
	return "bin"
}

func (o *OpenAICompat) transcribe(ctx context.Context, model string, parts []Part) (string, error) {
	var audio Part
	for _, p := range parts {
		if len(p.Data) > 0 {
			audio = p
			break
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio."+extension(audio.MIMEType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", err
	}
	writer.WriteField("model", model)
	writer.WriteField("response_format", "json")
	if prompt := joinText(parts); prompt != "" {
		writer.WriteField("prompt", prompt)
	}
	if o.lang != "" {
		writer.WriteField("language", o.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out struct {
		Text string `json:"text"`
	}
	if err := o.do(req, "audio/transcriptions", &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (o *OpenAICompat) chat(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := o.do(req, "chat/completions", &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

func (o *OpenAICompat) do(req *http.Request, endpoint string, out any) error {
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", o.name, endpoint, err)
	}
	logCall(o.name, endpoint, resp.Metrics)
	if resp.StatusCode != http.StatusOK {
		return &APIError{
			Provider:  o.name,
			Status:    resp.StatusCode,
			Body:      string(resp.Body),
			RateLimit: firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests") + "/" + firstNonEmpty(resp.Header, "x-ratelimit-limit-requests"),
		}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s response parse error: %w", o.name, err)
	}
	return nil
}

// APIError is a non-200 answer from the service.
type APIError struct {
	Provider  string
	Status    int
	Body      string
	RateLimit string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, strings.TrimSpace(e.Body))
}
