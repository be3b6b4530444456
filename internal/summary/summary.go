package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voice-bridge/internal/config"
)

var (
	ErrDisabled        = errors.New("summary: disabled")
	ErrEmptyTranscript = errors.New("summary: empty transcript")
)

// Input is what a provider needs to summarize one call.
type Input struct {
	TenantID     string
	BusinessName string
	Transcript   string
}

type Result struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// Summarizer turns a finished call transcript into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (Result, error)
}

// Noop is used when no provider is configured.
type Noop struct{}

func (Noop) Summarize(context.Context, Input) (Result, error) { return Result{}, ErrDisabled }

// New builds the provider selected in configuration.
func New(ctx context.Context, c config.SummaryConfig) (Summarizer, error) {
	switch c.Provider {
	case "openai":
		return NewOpenAI(c.OpenAIAPIKey, c.Model), nil
	case "gemini":
		return NewGemini(ctx, c.GeminiAPIKey, c.Model)
	case "", "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("summary: unknown provider %q", c.Provider)
	}
}

const systemInstruction = "You summarize phone calls handled by an AI receptionist. " +
	"Reply with a JSON object only: {\"summary\": string, \"action_items\": [string]}. " +
	"The summary is two or three sentences. Action items are concrete follow-ups for staff; use an empty list when there are none."

// userPrompt renders the transcript for the model.
func userPrompt(in Input) string {
	var b strings.Builder
	if in.BusinessName != "" {
		fmt.Fprintf(&b, "Business: %s\n\n", in.BusinessName)
	}
	b.WriteString("Transcript:\n")
	b.WriteString(strings.TrimSpace(in.Transcript))
	return b.String()
}

// ParseResult reads a model reply. JSON (optionally fenced) is preferred;
// anything else is taken as the summary text with "- " lines as action items.
func ParseResult(text string) Result {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var r Result
	if err := json.Unmarshal([]byte(text), &r); err == nil && r.Summary != "" {
		r.ActionItems = cleanItems(r.ActionItems)
		return r
	}

	var summaryLines, items []string
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		switch {
		case l == "":
		case strings.HasPrefix(l, "- "), strings.HasPrefix(l, "* "):
			items = append(items, strings.TrimSpace(l[2:]))
		default:
			summaryLines = append(summaryLines, l)
		}
	}
	return Result{Summary: strings.Join(summaryLines, " "), ActionItems: cleanItems(items)}
}

func cleanItems(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func checkInput(in Input) error {
	if strings.TrimSpace(in.Transcript) == "" {
		return ErrEmptyTranscript
	}
	return nil
}
