package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/internal/tools"
	"github.com/capitalize-ai/task-agent/pkg/logger"
	"github.com/capitalize-ai/task-agent/pkg/metrics"
)

// ErrNoJSON is returned when a completion contains no JSON object.
var ErrNoJSON = errors.New("completion contained no JSON object")

// IntentClassifier asks a language model to map free text onto one of the
// task tools. It only proposes an intent; nothing is executed here.
type IntentClassifier struct {
	client Client
	model  string
	system string
	logger *logger.Logger
}

// NewIntentClassifier creates a classifier that describes defs to the model.
func NewIntentClassifier(client Client, model string, defs []tools.Definition, log *logger.Logger) *IntentClassifier {
	return &IntentClassifier{
		client: client,
		model:  model,
		system: systemPrompt(defs),
		logger: log,
	}
}

// classified is the wire shape the model is asked to produce.
type classified struct {
	Intent      string `json:"intent"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	TaskID      string `json:"task_id"`
	TaskTitle   string `json:"task_title"`
	Reference   string `json:"reference"`
}

// Classify implements agent.Classifier.
func (c *IntentClassifier) Classify(ctx context.Context, utterance, contextSummary string) (*model.Intent, error) {
	var prompt strings.Builder
	if contextSummary != "" {
		prompt.WriteString("Conversation context:\n")
		prompt.WriteString(contextSummary)
		prompt.WriteString("\n")
	}
	prompt.WriteString("User message: ")
	prompt.WriteString(utterance)

	start := time.Now()
	resp, err := c.client.Complete(ctx, &CompletionRequest{
		Model:       c.model,
		System:      c.system,
		Messages:    []ChatMessage{{Role: "user", Content: prompt.String()}},
		MaxTokens:   256,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		metrics.RecordLLMRequest(c.modelLabel(), "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("%s completion failed: %w", c.client.Name(), err)
	}
	metrics.RecordLLMRequest(c.modelLabel(), "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	intent, err := ParseIntent(resp.Content)
	if err != nil {
		c.logger.Warn("unparseable classifier output",
			zap.String("provider", c.client.Name()),
			zap.Int("length", len(resp.Content)),
			zap.Error(err),
		)
		return nil, err
	}
	return intent, nil
}

func (c *IntentClassifier) modelLabel() string {
	if c.model != "" {
		return c.model
	}
	return c.client.Name()
}

// ParseIntent decodes a model completion into an Intent. Surrounding prose
// and code fences are ignored and malformed JSON is repaired where possible.
// Unrecognised intent names decode as IntentUnknown.
func ParseIntent(content string) (*model.Intent, error) {
	raw := extractObject(content)
	if raw == "" {
		return nil, ErrNoJSON
	}

	var out classified
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return nil, fmt.Errorf("failed to repair classifier output: %w", rerr)
		}
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return nil, fmt.Errorf("failed to decode classifier output: %w", err)
		}
	}

	kind := model.IntentKind(strings.ToLower(strings.TrimSpace(out.Intent)))
	if kind.Tool() == "" {
		kind = model.IntentUnknown
	}

	return &model.Intent{
		Kind:        kind,
		Title:       strings.TrimSpace(out.Title),
		Description: strings.TrimSpace(out.Description),
		Status:      model.StatusFilter(strings.ToLower(strings.TrimSpace(out.Status))),
		TaskID:      strings.TrimSpace(out.TaskID),
		TaskTitle:   strings.TrimSpace(out.TaskTitle),
		Reference:   strings.TrimSpace(out.Reference),
	}, nil
}

// extractObject returns the span from the first '{' to the last '}', or the
// tail from the first '{' when the object was cut off.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func systemPrompt(defs []tools.Definition) string {
	var b strings.Builder
	b.WriteString("You classify messages sent to a personal task assistant. ")
	b.WriteString("Pick the single operation the user is asking for, or \"unknown\" if none fits.\n\nOperations:\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
		if len(d.Parameters) > 0 {
			names := make([]string, 0, len(d.Parameters))
			for _, p := range d.Parameters {
				names = append(names, p.Name)
			}
			fmt.Fprintf(&b, " (parameters: %s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Reply with one JSON object and nothing else:
{"intent": "<operation or unknown>", "title": "", "description": "", "status": "all|pending|completed", "task_title": "", "reference": ""}
Use "title" and "description" for new values. Use "task_title" for an existing task named in the context and "reference" for the words the user used to point at it. Leave fields you cannot fill empty. Never invent task ids.`)
	return b.String()
}
