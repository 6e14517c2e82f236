package llm

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Completer turns a text prompt into raw completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterOptions configures the chat-completion backed completer.
type CompleterOptions struct {
	Client      *Client
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type chatCompleter struct {
	client      *Client
	logger      *logrus.Logger
	model       string
	temperature float64
	timeout     time.Duration
}

const (
	defaultCompleterTemperature = 0.3
	defaultCompleterTimeout     = 60 * time.Second
)

// NewCompleter constructs a Completer implementation backed by the chat completions API.
func NewCompleter(opts CompleterOptions) (Completer, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("completer model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultCompleterTemperature
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCompleterTimeout
	}

	return &chatCompleter{
		client:      opts.Client,
		logger:      opts.Client.logger,
		model:       model,
		temperature: temperature,
		timeout:     timeout,
	}, nil
}

func (c *chatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	trimmedPrompt := strings.TrimSpace(prompt)
	if trimmedPrompt == "" {
		return "", eris.New("prompt is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(trimmedPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}

	fields := logrus.Fields{"model": c.model, "prompt_chars": len(trimmedPrompt)}

	start := time.Now()
	completion, err := c.client.chat.New(ctx, params)
	if err != nil {
		c.logError(fields, err, "requesting chat completion")
		return "", eris.Wrap(err, "requesting chat completion")
	}

	if len(completion.Choices) == 0 {
		err := eris.New("llm completion returned no choices")
		c.logError(fields, err, "processing chat completion")
		return "", err
	}

	choice := completion.Choices[0]
	if reason := strings.TrimSpace(choice.FinishReason); strings.EqualFold(reason, "content_filter") {
		err := eris.New("llm blocked the request via content filter")
		c.logError(fields, err, "completion blocked")
		return "", err
	}

	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		err := eris.Errorf("llm refused to complete the prompt: %s", refusal)
		c.logError(fields, err, "completion refused")
		return "", err
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		err := eris.New("llm response content is empty")
		c.logError(fields, err, "empty llm response")
		return "", err
	}

	if c.logger != nil {
		c.logger.WithFields(fields).WithFields(logrus.Fields{
			"response_chars": len(content),
			"duration_ms":    float64(time.Since(start).Microseconds()) / 1000,
		}).Debug("chat completion finished")
	}

	return content, nil
}

func (c *chatCompleter) logError(fields logrus.Fields, err error, message string) {
	if c.logger == nil || err == nil {
		return
	}

	entry := c.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
