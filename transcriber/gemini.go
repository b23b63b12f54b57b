package transcriber

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"voicenotes/log"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/"

// Gemini calls generateContent on the Gemini API. Audio is sent inline
// next to the instruction text.
type Gemini struct {
	client *genai.Client
	traced *TracedClient
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	traced := NewTracedClient()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: traced.HTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, traced: traced}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

// Warm pre-opens the API connection.
func (g *Gemini) Warm() { g.traced.Warm(geminiEndpoint) }

func (g *Gemini) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	gparts := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			gparts = append(gparts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		gparts = append(gparts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(gparts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	if m := g.traced.Last(); m != nil {
		logCall(g.Name(), model, m)
	}
	return resp.Text(), nil
}

func logCall(provider, endpoint string, m *NetworkMetrics) {
	log.ServiceCall(provider, endpoint, log.Network{
		DNSMs:      float64(m.DNS.Milliseconds()),
		TLSMs:      float64(m.TLS.Milliseconds()),
		TTFBMs:     float64(m.TTFB.Milliseconds()),
		TotalMs:    float64(m.Total.Milliseconds()),
		ConnReused: m.ConnReused,
		TLSProto:   m.TLSProtocol,
		SentKB:     float64(max(m.SentBytes, 0)) / 1024,
	})
}
