package agent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/pkg/logger"
)

// Classifier recovers an intent from free text when the keyword rules find
// nothing. Implementations are typically backed by a language model.
type Classifier interface {
	Classify(ctx context.Context, utterance, contextSummary string) (*model.Intent, error)
}

// Source records which stage produced an intent.
type Source string

const (
	SourceKeyword    Source = "keyword"
	SourceClassifier Source = "classifier"
	SourceNone       Source = "none"
)

const (
	keywordConfidence    = 0.9
	classifierConfidence = 0.6
)

// Extraction is the result of extracting an intent from one utterance.
type Extraction struct {
	Intent     model.Intent
	Confidence float64
	Source     Source
	// Resolution is the reference outcome for intents that target a task.
	Resolution Resolution
	// FallbackErr is set when the classifier was consulted and failed.
	FallbackErr error
}

// Extractor maps an utterance plus context to an Intent.
type Extractor struct {
	fallback Classifier
	timeout  time.Duration
	logger   *logger.Logger
}

// NewExtractor creates an extractor. fallback may be nil.
func NewExtractor(fallback Classifier, timeout time.Duration, log *logger.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Extractor{fallback: fallback, timeout: timeout, logger: log}
}

// Extract runs the keyword rules and, when they yield nothing for a
// non-trivial utterance, the fallback classifier.
func (e *Extractor) Extract(ctx context.Context, utterance string, snap *Snapshot) Extraction {
	intent, res := ParseIntent(utterance, snap)
	if intent.Kind != model.IntentUnknown {
		return Extraction{Intent: intent, Confidence: keywordConfidence, Source: SourceKeyword, Resolution: res}
	}

	unknown := Extraction{Intent: intent, Source: SourceNone, Resolution: Resolution{Rule: RuleNone}}
	if e.fallback == nil || len(strings.Fields(utterance)) < 2 {
		return unknown
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	recovered, err := e.fallback.Classify(cctx, utterance, snap.Summary())
	if err != nil {
		e.logger.Warn("intent classifier failed", zap.Error(err))
		unknown.FallbackErr = err
		return unknown
	}
	if recovered == nil {
		return unknown
	}

	intent, res = sanitizeClassified(*recovered, utterance, snap)
	if intent.Kind == model.IntentUnknown {
		return unknown
	}
	return Extraction{Intent: intent, Confidence: classifierConfidence, Source: SourceClassifier, Resolution: res}
}

// sanitizeClassified keeps only what the keyword path would also accept. Task
// IDs proposed by the classifier are only trusted when they appear in context.
func sanitizeClassified(in model.Intent, utterance string, snap *Snapshot) (model.Intent, Resolution) {
	out := model.Intent{Kind: in.Kind}
	res := Resolution{Rule: RuleNone}

	switch in.Kind {
	case model.IntentAddTask:
		out.Title = capitalize(cleanValue(in.Title))
		out.Description = strings.TrimSpace(in.Description)
		if out.Title == "" {
			return model.Intent{Kind: model.IntentUnknown}, res
		}
	case model.IntentListTasks:
		out.Status = in.Status
		if !out.Status.Valid() {
			out.Status = model.StatusAll
		}
	case model.IntentCompleteTask, model.IntentDeleteTask, model.IntentUpdateTask:
		if in.Kind == model.IntentUpdateTask {
			out.Title = capitalize(cleanValue(in.Title))
			out.Description = strings.TrimSpace(in.Description)
		}
		for _, c := range snap.Candidates() {
			if in.TaskID != "" && c.ID == in.TaskID {
				t := c
				res = Resolution{Task: &t, Rule: RuleTitle}
				break
			}
		}
		if !res.Resolved() {
			ref := in.Reference
			if ref == "" {
				ref = in.TaskTitle
			}
			if ref == "" {
				ref = utterance
			}
			out.Reference = ref
			res = Resolve(ref, snap)
		}
		if res.Resolved() {
			out.TaskID = res.Task.ID
			out.TaskTitle = res.Task.Title
		}
	default:
		return model.Intent{Kind: model.IntentUnknown}, res
	}
	return out, res
}

type keywordRule struct {
	kind model.IntentKind
	// skipOnAdd makes the rule yield to an explicit leading add command.
	skipOnAdd bool
	match     func(s string) bool
}

var (
	deleteRe   = regexp.MustCompile(`(?i)\b(delete|remove|erase|trash|get rid of)\b`)
	updateRe   = regexp.MustCompile(`(?i)\b(update|change|rename|edit|modify)\b`)
	completeRe = regexp.MustCompile(`(?i)\b(complete|finish|finished|done|check off|checked off|tick off|ticked off|mark|accomplished)\b`)
	listLeadRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:can you\s+|could you\s+)?(?:list|show|display|view|see|what|which|how many|give me)\b`)
	listVerbRe = regexp.MustCompile(`(?i)\b(list|show|display|view)\b`)
	listAskRe  = regexp.MustCompile(`(?i)\b(what|which|how many|see|any)\b`)
	listNounRe = regexp.MustCompile(`(?i)\b(tasks?|todos?|to-dos?|list|pending|completed|done|left|remaining|outstanding)\b`)
	myListRe   = regexp.MustCompile(`(?i)\bmy\s+(tasks|todos|to-dos|list)\b`)
	addRe      = regexp.MustCompile(`(?i)\b(add|create|new task|remember to|remind me to|i need to|i have to)\b|(?:^|\s)(?:todo|to-do)\s*:`)
	addLeadRe  = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:can you\s+|could you\s+)?(?:add|create|new task|remember to|remind me to|(?:todo|to-do)\s*:)`)

	pendingWordsRe   = regexp.MustCompile(`(?i)\b(pending|incomplete|open|remaining|outstanding|unfinished|left|not done)\b`)
	completedWordsRe = regexp.MustCompile(`(?i)\b(completed|complete|done|finished)\b`)
)

// keywordRules is ordered by priority; the first match wins so destructive
// operations are never shadowed by weaker cues.
var keywordRules = []keywordRule{
	{kind: model.IntentDeleteTask, match: deleteRe.MatchString},
	{kind: model.IntentUpdateTask, skipOnAdd: true, match: updateRe.MatchString},
	{kind: model.IntentCompleteTask, skipOnAdd: true, match: func(s string) bool {
		return completeRe.MatchString(s) && !listLeadRe.MatchString(s)
	}},
	{kind: model.IntentListTasks, skipOnAdd: true, match: func(s string) bool {
		return listVerbRe.MatchString(s) || myListRe.MatchString(s) ||
			(listAskRe.MatchString(s) && listNounRe.MatchString(s))
	}},
	{kind: model.IntentAddTask, match: addRe.MatchString},
}

// ParseIntent is the deterministic keyword pass. For task-targeting intents
// the reference is resolved against snap.
func ParseIntent(utterance string, snap *Snapshot) (model.Intent, Resolution) {
	if snap == nil {
		snap = &Snapshot{}
	}
	text := strings.TrimSpace(utterance)
	addLead := addLeadRe.MatchString(text)

	for _, r := range keywordRules {
		if r.skipOnAdd && addLead {
			continue
		}
		if !r.match(text) {
			continue
		}
		switch r.kind {
		case model.IntentDeleteTask, model.IntentCompleteTask:
			return targetIntent(r.kind, text, snap)
		case model.IntentUpdateTask:
			return parseUpdate(text, snap)
		case model.IntentListTasks:
			return model.Intent{Kind: model.IntentListTasks, Status: parseStatus(text)}, Resolution{Rule: RuleNone}
		case model.IntentAddTask:
			return parseAdd(text), Resolution{Rule: RuleNone}
		}
	}
	return model.Intent{Kind: model.IntentUnknown}, Resolution{Rule: RuleNone}
}

func targetIntent(kind model.IntentKind, ref string, snap *Snapshot) (model.Intent, Resolution) {
	intent := model.Intent{Kind: kind, Reference: ref}
	res := Resolve(ref, snap)
	if res.Resolved() {
		intent.TaskID = res.Task.ID
		intent.TaskTitle = res.Task.Title
	}
	return intent, res
}

func parseStatus(s string) model.StatusFilter {
	switch {
	case pendingWordsRe.MatchString(s):
		return model.StatusPending
	case completedWordsRe.MatchString(s):
		return model.StatusCompleted
	default:
		return model.StatusAll
	}
}

var (
	descMarkerRe = regexp.MustCompile(`(?i)\s*,?\s*(?:with\s+(?:the\s+|a\s+)?description|with\s+details|description\s*:|desc\s*:|details\s*:)\s*:?\s*`)
	addPrefixRe  = regexp.MustCompile(`(?i)^.*?\b(?:` +
		`(?:add|create|make|put)\s+(?:a\s+|an\s+|the\s+)?(?:new\s+)?(?:(?:task|todo|to-do|item|reminder|entry)\b)?\s*(?:(?:to|on|in)\s+(?:my\s+)?(?:list|tasks|todo list|to-do list|todos)\s*)?(?:(?:to|for|called|named|titled|saying)\b|:)?` +
		`|remember\s+to|remind\s+me\s+to|i\s+(?:need|have|want)\s+to` +
		`|new\s+(?:task|todo|to-do)\s*:?` +
		`|(?:todo|to-do)\s*:` +
		`)\s*`)
	addSuffixRe = regexp.MustCompile(`(?i)\s+(?:to|on|in)\s+(?:my\s+)?(?:list|tasks|todo list|to-do list|todos|task list)\s*[.!]?$`)
)

// parseAdd strips the command prefix and splits off an explicit description.
// An empty title yields IntentUnknown so the user is asked again.
func parseAdd(s string) model.Intent {
	titlePart, desc := s, ""
	if loc := descMarkerRe.FindStringIndex(s); loc != nil {
		titlePart, desc = s[:loc[0]], s[loc[1]:]
	}

	titlePart = addPrefixRe.ReplaceAllString(titlePart, "")
	titlePart = addSuffixRe.ReplaceAllString(titlePart, "")
	title := capitalize(cleanValue(titlePart))
	if title == "" {
		return model.Intent{Kind: model.IntentUnknown}
	}
	return model.Intent{Kind: model.IntentAddTask, Title: title, Description: cleanValue(desc)}
}

var (
	fieldOfRe     = regexp.MustCompile(`(?i)\b(?:the\s+)?(title|name|description|details|notes?)\s+(?:of|for|on)\s+`)
	possessiveRe  = regexp.MustCompile(`(?i)'s\s+(title|name|description|details|notes?)\b`)
	itsFieldRe    = regexp.MustCompile(`(?i)\bits\s+(title|name|description|details|notes?)\b`)
	trailFieldRe  = regexp.MustCompile(`(?i)\s+(title|name|description|details|notes?)\s*$`)
	descFieldRe   = regexp.MustCompile(`(?i)^(description|details|notes?)$`)
	updateVerbRe  = regexp.MustCompile(`(?i)^.*?\b(?:update|change|rename|edit|modify)\b\s*`)
	toSeparatorRe = regexp.MustCompile(`(?i)\s+to\s+`)
)

// parseUpdate splits "<verb> <reference> to <value>" and detects whether the
// value is a title or a description.
func parseUpdate(s string, snap *Snapshot) (model.Intent, Resolution) {
	rest := updateVerbRe.ReplaceAllString(s, "")

	refPart, value := rest, ""
	field := ""
	if loc := descMarkerRe.FindStringIndex(rest); loc != nil {
		refPart, value, field = rest[:loc[0]], rest[loc[1]:], "description"
	} else if loc := splitUpdate(rest, snap); loc != nil {
		refPart, value = rest[:loc[0]], rest[loc[1]:]
	}

	refPart, named := stripFieldWords(refPart)
	if field == "" {
		field = named
	}

	intent, res := targetIntent(model.IntentUpdateTask, refPart, snap)

	value = cleanValue(value)
	if field == "description" {
		intent.Description = value
	} else {
		intent.Title = capitalize(value)
	}
	return intent, res
}

// splitUpdate picks the " to " separating the task reference from the new
// value. Titles can contain "to" themselves, so the first separator whose
// left side names a known task wins; otherwise the first one is used.
func splitUpdate(rest string, snap *Snapshot) []int {
	locs := toSeparatorRe.FindAllStringIndex(rest, -1)
	if len(locs) == 0 {
		return nil
	}
	if snap != nil && len(locs) > 1 {
		candidates := snap.Candidates()
		for _, loc := range locs {
			ref, _ := stripFieldWords(rest[:loc[0]])
			if matchWholeTitle(ref, candidates).Resolved() {
				return loc
			}
		}
	}
	return locs[0]
}

// stripFieldWords removes "the title of", "its description" and similar
// from a reference, reporting "description" when that field was named.
func stripFieldWords(ref string) (string, string) {
	field := ""
	note := func(name string) {
		if field == "" && descFieldRe.MatchString(name) {
			field = "description"
		}
	}

	if m := fieldOfRe.FindStringSubmatch(ref); m != nil {
		note(m[1])
		ref = fieldOfRe.ReplaceAllString(ref, "")
	}
	if m := possessiveRe.FindStringSubmatch(ref); m != nil {
		note(m[1])
		ref = possessiveRe.ReplaceAllString(ref, "")
	}
	if m := itsFieldRe.FindStringSubmatch(ref); m != nil {
		note(m[1])
		ref = itsFieldRe.ReplaceAllString(ref, "it")
	}
	if m := trailFieldRe.FindStringSubmatch(ref); m != nil {
		note(m[1])
		ref = trailFieldRe.ReplaceAllString(ref, "")
	}
	return strings.TrimSpace(ref), field
}
