package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// Rule names the resolution rule that produced a Resolution.
type Rule string

const (
	RuleTitle   Rule = "title"
	RuleOrdinal Rule = "ordinal"
	RulePronoun Rule = "pronoun"
	RuleStore   Rule = "store"
	RuleNone    Rule = "none"
)

// Resolution is the outcome of resolving a task reference. An unresolved
// reference is a normal outcome: the caller decides whether to ask the user.
type Resolution struct {
	Task *TaskRef
	Rule Rule
	// Ambiguous is set when several tasks matched equally well.
	Ambiguous bool
}

// Resolved reports whether a concrete task was found.
func (r Resolution) Resolved() bool {
	return r.Task != nil
}

var (
	ordinalWords = map[string]int{
		"first": 0, "1st": 0,
		"second": 1, "2nd": 1,
		"third": 2, "3rd": 2,
		"fourth": 3, "4th": 3,
		"fifth": 4, "5th": 4,
		"last": -1, "previous": -1,
	}
	ordinalRe = regexp.MustCompile(`(?i)\b(first|1st|second|2nd|third|3rd|fourth|4th|fifth|5th|last|previous)\b|(?:#|\bnumber\s+)(\d+)\b`)
	pronounRe       = regexp.MustCompile(`(?i)\b(it|the one)\b`)
	demonstrativeRe = regexp.MustCompile(`(?i)\b(?:that|this)\b`)

	// referenceStopWords never identify a task on their own: command verbs,
	// determiners, pronouns and filler.
	referenceStopWords = toSet(
		"i", "i'm", "i've", "i'd", "me", "my", "mine", "we", "our", "you", "your",
		"it", "its", "it's", "that", "this", "these", "those", "the", "a", "an", "one", "ones",
		"task", "tasks", "todo", "todos", "to-do", "item", "items", "thing", "entry", "list",
		"please", "can", "could", "would", "will", "should", "just", "now", "then", "already",
		"also", "too", "again", "and", "or", "but", "so", "as", "at", "by", "for", "from",
		"in", "into", "of", "off", "on", "to", "up", "with", "about", "is", "was", "be",
		"been", "are", "have", "has", "had", "do", "did", "does", "done", "not", "no", "yes",
		"ok", "okay", "thanks", "say", "says", "said", "called", "named", "titled", "which",
		"what", "where", "there", "here", "want", "need", "let's", "lets",
		"complete", "completed", "finish", "finished", "mark", "marked", "check", "checked",
		"tick", "ticked", "accomplished", "delete", "remove", "erase", "trash", "get", "rid",
		"update", "change", "rename", "edit", "modify", "show",
	)
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// contentWords returns the words of s that could name a task, in order and
// without duplicates. Ordinals are dropped.
func contentWords(s string) []string {
	s = ordinalRe.ReplaceAllString(s, " ")
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(normalize(s)) {
		if len([]rune(w)) < 2 || referenceStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// refersBack reports whether s points at an earlier task with a bare
// pronoun. "that" and "this" only count when no content words follow them.
func refersBack(s string) bool {
	if pronounRe.MatchString(s) {
		return true
	}
	for _, loc := range demonstrativeRe.FindAllStringIndex(s, -1) {
		if len(contentWords(s[loc[1]:])) == 0 {
			return true
		}
	}
	return false
}

// Resolve maps a reference in utterance to a task using, in order: whole
// title match, ordinal position in the last list, title word match, then
// bare pronoun.
func Resolve(utterance string, snap *Snapshot) Resolution {
	if snap == nil {
		snap = &Snapshot{}
	}

	if res := matchWholeTitle(utterance, snap.Candidates()); res.Resolved() || res.Ambiguous {
		return res
	}

	if idx, ok := ordinal(utterance); ok {
		if !snap.HasList {
			return Resolution{Rule: RuleOrdinal}
		}
		if idx < 0 {
			idx = len(snap.LastList) + idx
		}
		if idx < 0 || idx >= len(snap.LastList) {
			return Resolution{Rule: RuleOrdinal}
		}
		t := snap.LastList[idx]
		return Resolution{Task: &t, Rule: RuleOrdinal}
	}

	if res := matchTitleWords(utterance, snap.Candidates()); res.Resolved() || res.Ambiguous {
		return res
	}

	if refersBack(utterance) {
		if snap.Antecedent == nil {
			return Resolution{Rule: RulePronoun, Ambiguous: len(snap.RecentTasks) > 1}
		}
		t := *snap.Antecedent
		return Resolution{Task: &t, Rule: RulePronoun}
	}

	return Resolution{Rule: RuleNone}
}

// MatchTitle looks for a task whose title is named in utterance, first as a
// whole title and then by the title's words.
func MatchTitle(utterance string, candidates []TaskRef) Resolution {
	if res := matchWholeTitle(utterance, candidates); res.Resolved() || res.Ambiguous {
		return res
	}
	return matchTitleWords(utterance, candidates)
}

// matchTitleWords accepts the single title that contains any of the
// utterance's content words. Two or more such titles are ambiguous.
func matchTitleWords(utterance string, candidates []TaskRef) Resolution {
	words := contentWords(utterance)
	if len(words) == 0 {
		return Resolution{Rule: RuleNone}
	}

	var matches []TaskRef
	for _, c := range candidates {
		title := normalize(c.Title)
		for _, w := range words {
			if containsPhrase(title, w) {
				matches = append(matches, c)
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return Resolution{Rule: RuleNone}
	case 1:
		t := matches[0]
		return Resolution{Task: &t, Rule: RuleTitle}
	}
	return Resolution{Rule: RuleTitle, Ambiguous: true}
}

// matchWholeTitle matches a quoted span as a substring of titles; otherwise a
// whole title must appear in the utterance. When several titles match, the
// longest wins if it is unique, else the match is ambiguous.
func matchWholeTitle(utterance string, candidates []TaskRef) Resolution {
	if len(candidates) == 0 {
		return Resolution{Rule: RuleNone}
	}

	var matches []TaskRef
	if q := normalize(quoted(utterance)); q != "" {
		for _, c := range candidates {
			title := normalize(c.Title)
			if containsPhrase(title, q) {
				if title == q {
					t := c
					return Resolution{Task: &t, Rule: RuleTitle}
				}
				matches = append(matches, c)
			}
		}
	} else {
		text := normalize(utterance)
		for _, c := range candidates {
			if title := normalize(c.Title); title != "" && containsPhrase(text, title) {
				matches = append(matches, c)
			}
		}
	}

	switch len(matches) {
	case 0:
		return Resolution{Rule: RuleNone}
	case 1:
		t := matches[0]
		return Resolution{Task: &t, Rule: RuleTitle}
	}

	best, bestLen, tie := matches[0], len(normalize(matches[0].Title)), false
	for _, m := range matches[1:] {
		l := len(normalize(m.Title))
		switch {
		case l > bestLen:
			best, bestLen, tie = m, l, false
		case l == bestLen:
			tie = true
		}
	}
	if tie {
		return Resolution{Rule: RuleTitle, Ambiguous: true}
	}
	return Resolution{Task: &best, Rule: RuleTitle}
}

// ordinal returns the zero-based index named in s; negative counts from the end.
func ordinal(s string) (int, bool) {
	m := ordinalRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	if m[1] != "" {
		idx, ok := ordinalWords[normalize(m[1])]
		return idx, ok
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// refsFromSummaries adapts store results for title matching.
func refsFromSummaries(tasks []model.TaskSummary) []TaskRef {
	refs := make([]TaskRef, 0, len(tasks))
	for _, t := range tasks {
		refs = append(refs, TaskRef{ID: t.ID, Title: t.Title, MentionedAt: -1})
	}
	return refs
}
