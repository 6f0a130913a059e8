package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cchalm/chatwidget/internal/ai"
)

// SDKSender sends through the generative-ai-go client and streams the reply
type SDKSender struct {
	client *genai.Client
	model  string
}

// NewSDKSender creates a Google AI client authenticated with apiKey
func NewSDKSender(ctx context.Context, apiKey string, model string, opts ...option.ClientOption) (*SDKSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google AI API key is required") // nolint: staticcheck
	}
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	return &SDKSender{client: client, model: model}, nil
}

// Send replays all but the last turn as chat history and streams the reply to the last turn
func (s *SDKSender) Send(ctx context.Context, history []ai.Turn, onChunk ai.ChunkFunc) (ai.Reply, error) {
	contents, err := toGenaiContents(history)
	if err != nil {
		return ai.Reply{}, err
	}
	if len(contents) == 0 {
		return ai.Reply{}, fmt.Errorf("history is empty")
	}

	chat := s.client.GenerativeModel(s.model).StartChat()
	chat.History = contents[:len(contents)-1]

	iter := chat.SendMessageStream(ctx, contents[len(contents)-1].Parts...)
	var sb strings.Builder
	found := false
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ai.Reply{}, ctx.Err()
			}
			return ai.Reply{}, &ai.TransportError{Err: fmt.Errorf("stream error: %w", err)}
		}
		delta, ok := firstGenaiText(resp)
		if !ok {
			continue
		}
		found = true
		sb.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	return ai.Reply{Text: sb.String(), Found: found}, nil
}

// Close releases the client
func (s *SDKSender) Close() error {
	return s.client.Close()
}

func toGenaiContents(history []ai.Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		c := &genai.Content{Role: string(turn.Role)}
		for _, p := range turn.Parts {
			if p.InlineData == nil {
				c.Parts = append(c.Parts, genai.Text(p.Text))
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode inline data: %w", err)
			}
			c.Parts = append(c.Parts, genai.Blob{MIMEType: p.InlineData.MIMEType, Data: data})
		}
		contents = append(contents, c)
	}
	return contents, nil
}

// firstGenaiText returns the text of the first candidate's first part
func firstGenaiText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	c := resp.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 {
		return "", false
	}
	txt, ok := c.Parts[0].(genai.Text)
	return string(txt), ok
}
