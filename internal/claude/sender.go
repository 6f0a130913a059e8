// Package claude sends conversation history to Anthropic's Messages API and streams the reply.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"github.com/cchalm/chatwidget/internal/ai"
)

const (
	DefaultModel           = anthropic.ModelClaudeSonnet4_0
	DefaultMaxOutputTokens = 4096
)

type StreamingSender struct {
	client          anthropic.Client
	model           anthropic.Model
	maxOutputTokens int64
	systemPrompt    string
	logger          zerolog.Logger
}

func NewStreamingSender(client anthropic.Client, model string, maxOutputTokens int64, logger zerolog.Logger) *StreamingSender {
	if model == "" {
		model = string(DefaultModel)
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}
	return &StreamingSender{
		client:          client,
		model:           anthropic.Model(model),
		maxOutputTokens: maxOutputTokens,
		logger:          logger,
	}
}

// WithSystemPrompt sets the system prompt sent with every request
func (ss *StreamingSender) WithSystemPrompt(prompt string) *StreamingSender {
	ss.systemPrompt = prompt
	return ss
}

func (ss *StreamingSender) Send(ctx context.Context, history []ai.Turn, onChunk ai.ChunkFunc) (ai.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     ss.model,
		MaxTokens: ss.maxOutputTokens,
		Messages:  toMessageParams(history),
	}
	if ss.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: ss.systemPrompt}}
	}

	stream := ss.client.Messages.NewStreaming(ctx, params)
	response := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		err := response.Accumulate(event)
		if err != nil {
			return ai.Reply{}, fmt.Errorf("failed to accumulate response content stream: %w", err)
		}
		if onChunk == nil {
			continue
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
				onChunk(text.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ai.Reply{}, ctx.Err()
		}
		return ai.Reply{}, toTransportError(err)
	}
	if response.StopReason == "" {
		return ai.Reply{}, &ai.TransportError{Err: fmt.Errorf("malformed message: stream ended without a stop reason")}
	}

	ss.logger.Debug().
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Msg("Token usage")

	text := responseText(response)
	return ai.Reply{Text: text, Found: text != ""}, nil
}

func toTransportError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ai.TransportError{StatusCode: apiErr.StatusCode, Message: apiErrorMessage(apiErr.RawJSON()), Err: err}
	}
	return &ai.TransportError{Err: fmt.Errorf("failed to stream response: %w", err)}
}

// apiErrorMessage extracts error.message from an API error body, or "" if there is none
func apiErrorMessage(raw string) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Error.Message)
}

func toMessageParams(history []ai.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, turn := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				blocks = append(blocks, anthropic.NewImageBlockBase64(p.InlineData.MIMEType, p.InlineData.Data))
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		}
		if turn.Role == ai.RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

func responseText(msg anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
