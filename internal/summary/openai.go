package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAI summarizes with the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = string(defaultOpenAIModel)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAI) Summarize(ctx context.Context, in Input) (Result, error) {
	if err := checkInput(in); err != nil {
		return Result{}, err
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userPrompt(in)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("summary: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("summary: openai returned no choices")
	}
	return ParseResult(resp.Choices[0].Message.Content), nil
}
