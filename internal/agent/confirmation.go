package agent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// Action is what the confirmation controller tells the dispatcher to do.
type Action int

const (
	// ActionForward executes the tool in this turn.
	ActionForward Action = iota
	// ActionAwait stores a pending confirmation and executes nothing.
	ActionAwait
	// ActionExecutePending runs the stored tool call after a yes.
	ActionExecutePending
	// ActionCancel discards the pending confirmation after a no.
	ActionCancel
	// ActionReprompt keeps the pending confirmation and asks again.
	ActionReprompt
)

// Reply classifies an answer to a confirmation prompt.
type Reply int

const (
	ReplyAmbiguous Reply = iota
	ReplyAffirmative
	ReplyNegative
)

// Decision is the controller's verdict for one turn.
type Decision struct {
	Action  Action
	Pending *model.PendingConfirmation
}

// Controller is the Idle/AwaitingConfirmation state machine. It holds no
// per-conversation state; the current state is read from the Snapshot.
type Controller struct {
	confirmUpdates bool
}

// NewController creates a controller. With confirmUpdates set, update_task
// blocks for a yes/no like delete_task does.
func NewController(confirmUpdates bool) *Controller {
	return &Controller{confirmUpdates: confirmUpdates}
}

// Requires reports whether tool must wait for an explicit yes.
func (c *Controller) Requires(tool model.ToolName) bool {
	switch tool {
	case model.ToolDeleteTask:
		return true
	case model.ToolUpdateTask:
		return c.confirmUpdates
	}
	return false
}

// OnIntent handles a resolved intent while Idle.
func (c *Controller) OnIntent(tool model.ToolName, params map[string]string, taskTitle string) Decision {
	if !c.Requires(tool) {
		return Decision{Action: ActionForward}
	}
	return Decision{
		Action: ActionAwait,
		Pending: &model.PendingConfirmation{
			ToolName:   tool,
			Parameters: params,
			TaskTitle:  taskTitle,
			Prompt:     confirmationPrompt(tool, params, taskTitle),
		},
	}
}

// OnReply handles the next utterance while AwaitingConfirmation. Anything
// other than a clear yes or no re-prompts; the topic never silently changes.
func (c *Controller) OnReply(pending *model.PendingConfirmation, utterance string) Decision {
	switch ClassifyReply(utterance, pending.ToolName) {
	case ReplyAffirmative:
		return Decision{Action: ActionExecutePending, Pending: pending}
	case ReplyNegative:
		return Decision{Action: ActionCancel, Pending: pending}
	default:
		return Decision{Action: ActionReprompt, Pending: pending}
	}
}

var (
	affirmativePhrases = []string{
		"yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "confirmed",
		"go ahead", "proceed", "do it", "please do", "absolutely", "correct", "affirmative",
	}
	negativePhrases = []string{
		"no", "n", "nope", "nah", "cancel", "nevermind", "never mind", "skip", "stop",
		"abort", "don't", "dont", "do not", "keep it", "forget it",
	}
	fillerWords = map[string]bool{
		"please": true, "the": true, "task": true, "it": true, "that": true, "this": true,
		"one": true, "now": true, "then": true, "thanks": true, "thank": true, "you": true,
		"go": true, "ahead": true, "just": true, "do": true, "i'm": true, "im": true,
	}
	toolVerbs = map[model.ToolName][]string{
		model.ToolDeleteTask: {"delete", "remove", "erase", "trash"},
		model.ToolUpdateTask: {"update", "change", "rename", "edit", "modify", "save", "apply"},
	}
)

// ClassifyReply decides whether utterance answers yes or no to a prompt for
// tool. Repeating the tool's verb ("delete it") counts as yes.
func ClassifyReply(utterance string, tool model.ToolName) Reply {
	text := normalize(utterance)
	if text == "" {
		return ReplyAmbiguous
	}

	hasYes := anyPhrase(text, affirmativePhrases)
	hasNo := anyPhrase(text, negativePhrases)
	hasVerb := anyPhrase(text, toolVerbs[tool])

	switch {
	case hasYes && hasNo:
		return ReplyAmbiguous
	case hasNo:
		// "don't delete it" is a refusal; "I don't know" is not.
		if onlyWordsFrom(text, negativePhrases, toolVerbs[tool]) {
			return ReplyNegative
		}
	case hasYes || hasVerb:
		if onlyWordsFrom(text, affirmativePhrases, toolVerbs[tool]) {
			return ReplyAffirmative
		}
	}
	return ReplyAmbiguous
}

func anyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

// onlyWordsFrom reports whether every word of text is filler or belongs to
// one of the phrase groups.
func onlyWordsFrom(text string, groups ...[]string) bool {
	allowed := make(map[string]bool, len(fillerWords)+32)
	for w := range fillerWords {
		allowed[w] = true
	}
	for _, group := range groups {
		for _, p := range group {
			for _, w := range strings.Fields(p) {
				allowed[w] = true
			}
		}
	}
	for _, w := range strings.Fields(text) {
		if !allowed[w] {
			return false
		}
	}
	return true
}

func confirmationPrompt(tool model.ToolName, params map[string]string, title string) string {
	switch tool {
	case model.ToolDeleteTask:
		return fmt.Sprintf("Are you sure you want to delete %q? Please reply yes or no.", title)
	case model.ToolUpdateTask:
		return fmt.Sprintf("Should I %s? Please reply yes or no.", describeChange(params, title))
	}
	return "Should I go ahead? Please reply yes or no."
}

// describeChange phrases an update_task call for the user.
func describeChange(params map[string]string, title string) string {
	newTitle, hasTitle := params[model.ParamTitle]
	_, hasDesc := params[model.ParamDescription]
	switch {
	case hasTitle && hasDesc:
		return fmt.Sprintf("rename %q to %q and update its description", title, newTitle)
	case hasTitle:
		return fmt.Sprintf("rename %q to %q", title, newTitle)
	default:
		return fmt.Sprintf("update the description of %q", title)
	}
}
