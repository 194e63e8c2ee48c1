// Package agent turns chat utterances into validated task operations.
//
// A turn runs context building, intent extraction (with reference
// resolution), the confirmation gate and finally tool execution. Nothing is
// held in memory between turns: every piece of working state is rebuilt from
// the conversation history supplied by the caller.
package agent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// DefaultHistoryWindow is how many trailing messages are scanned for context.
const DefaultHistoryWindow = 10

// TaskRef is a task mentioned somewhere in the conversation.
type TaskRef struct {
	ID    string
	Title string
	// MentionedAt is the index into the history of the message whose tool
	// result mentioned the task.
	MentionedAt int
}

// Snapshot is the read-only working state derived from recent history.
type Snapshot struct {
	// RecentTasks holds every task seen in a tool result, newest mention
	// first, deduplicated by ID.
	RecentTasks []TaskRef
	// Antecedent is the task a bare pronoun refers to. It is nil when the
	// latest task-bearing result was a list of several tasks.
	Antecedent *TaskRef
	// LastList is the most recent successful list_tasks result, verbatim.
	LastList []TaskRef
	HasList  bool
	Pending  *model.PendingConfirmation
}

// BuildContext scans the last window messages newest-to-oldest. It performs
// no I/O and does not modify history.
func BuildContext(history []model.Message, window int) *Snapshot {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}

	snap := &Snapshot{}
	seen := make(map[string]bool)
	pendingDecided := false
	antecedentDecided := false

	remember := func(t *model.TaskSummary, idx int) {
		if t == nil || t.ID == "" || seen[t.ID] {
			return
		}
		seen[t.ID] = true
		snap.RecentTasks = append(snap.RecentTasks, TaskRef{ID: t.ID, Title: t.Title, MentionedAt: idx})
	}

	for i := len(history) - 1; i >= start; i-- {
		msg := history[i]

		if !pendingDecided {
			switch msg.Role {
			case model.RoleUser:
				// The prompt was already answered by a turn whose reply
				// never got recorded.
				pendingDecided = true
			case model.RoleAssistant:
				pendingDecided = true
				snap.Pending = clonePending(msg.Pending)
			}
		}

		for j := len(msg.ToolCalls) - 1; j >= 0; j-- {
			call := msg.ToolCalls[j]

			if call.Name == model.ToolListTasks && call.Result.OK() {
				if !snap.HasList {
					snap.HasList = true
					snap.LastList = make([]TaskRef, 0, len(call.Result.Tasks))
					for _, t := range call.Result.Tasks {
						snap.LastList = append(snap.LastList, TaskRef{ID: t.ID, Title: t.Title, MentionedAt: i})
					}
				}
				if !antecedentDecided && len(call.Result.Tasks) > 0 {
					antecedentDecided = true
					if len(call.Result.Tasks) == 1 {
						t := call.Result.Tasks[0]
						snap.Antecedent = &TaskRef{ID: t.ID, Title: t.Title, MentionedAt: i}
					}
				}
				for k := range call.Result.Tasks {
					remember(&call.Result.Tasks[k], i)
				}
				continue
			}

			if t := call.Result.Task; t != nil && t.ID != "" {
				if !antecedentDecided {
					antecedentDecided = true
					snap.Antecedent = &TaskRef{ID: t.ID, Title: t.Title, MentionedAt: i}
				}
				remember(t, i)
			}
		}
	}

	return snap
}

// Awaiting reports whether a confirmation is pending.
func (s *Snapshot) Awaiting() bool {
	return s.Pending != nil
}

// Candidates returns the recent tasks followed by any list entries not
// already among them.
func (s *Snapshot) Candidates() []TaskRef {
	out := make([]TaskRef, 0, len(s.RecentTasks)+len(s.LastList))
	seen := make(map[string]bool)
	for _, group := range [][]TaskRef{s.RecentTasks, s.LastList} {
		for _, t := range group {
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Summary renders the snapshot as plain text for the fallback classifier.
func (s *Snapshot) Summary() string {
	var b strings.Builder
	if len(s.LastList) > 0 {
		b.WriteString("Last listed tasks (in order):\n")
		for i, t := range s.LastList {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title)
		}
	}
	if len(s.RecentTasks) > 0 {
		b.WriteString("Recently mentioned tasks (newest first):\n")
		for _, t := range s.RecentTasks {
			fmt.Fprintf(&b, "- %s\n", t.Title)
		}
	}
	if s.Antecedent != nil {
		fmt.Fprintf(&b, "Last mentioned task: %s\n", s.Antecedent.Title)
	}
	return b.String()
}

func clonePending(p *model.PendingConfirmation) *model.PendingConfirmation {
	if p == nil {
		return nil
	}
	c := *p
	c.Parameters = make(map[string]string, len(p.Parameters))
	for k, v := range p.Parameters {
		c.Parameters[k] = v
	}
	return &c
}
