// Package gemini sends conversation history to the Gemini generative-language API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cchalm/chatwidget/internal/ai"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultModel    = "gemini-2.5-flash"
)

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       *string     `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type candidate struct {
	Content *content `json:"content"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error"`
}

// firstText returns the first candidate's first part's text
func (r generateResponse) firstText() (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	c := r.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0].Text == nil {
		return "", false
	}
	return *c.Parts[0].Text, true
}

func toContents(history []ai.Turn) []content {
	contents := make([]content, 0, len(history))
	for _, turn := range history {
		c := content{Role: string(turn.Role), Parts: make([]part, 0, len(turn.Parts))}
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				c.Parts = append(c.Parts, part{InlineData: &inlineData{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}})
				continue
			}
			text := p.Text
			c.Parts = append(c.Parts, part{Text: &text})
		}
		contents = append(contents, c)
	}
	return contents
}

// RESTSender posts the history as JSON to the generateContent endpoint. Credentials are added by the HTTP client's
// transport.
type RESTSender struct {
	endpoint string
	model    string
	client   *http.Client
	logger   zerolog.Logger
}

func NewRESTSender(endpoint string, model string, client *http.Client, logger zerolog.Logger) *RESTSender {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTSender{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   client,
		logger:   logger,
	}
}

// URL returns the generateContent URL for the configured model
func (s *RESTSender) URL() string {
	return fmt.Sprintf("%s/%s:generateContent", s.endpoint, s.model)
}

// Send issues one POST. The reply is not streamed, so onChunk is never called.
func (s *RESTSender) Send(ctx context.Context, history []ai.Turn, _ ai.ChunkFunc) (ai.Reply, error) {
	body, err := json.Marshal(generateRequest{Contents: toContents(history)})
	if err != nil {
		return ai.Reply{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL(), bytes.NewReader(body))
	if err != nil {
		return ai.Reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ai.Reply{}, ctx.Err()
		}
		return ai.Reply{}, &ai.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ai.Reply{}, ctx.Err()
		}
		return ai.Reply{}, &ai.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var parsed generateResponse
	parseErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &ai.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
		if parseErr == nil && parsed.Error != nil {
			te.Message = parsed.Error.Message
		}
		s.logger.Debug().Int("status", resp.StatusCode).Str("message", te.Message).Msg("API returned an error")
		return ai.Reply{}, te
	}
	if parseErr != nil {
		return ai.Reply{}, &ai.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", parseErr)}
	}

	text, found := parsed.firstText()
	return ai.Reply{Text: text, Found: found}, nil
}
