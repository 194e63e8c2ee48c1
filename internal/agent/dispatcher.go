package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/pkg/logger"
	"github.com/capitalize-ai/task-agent/pkg/metrics"
)

// ErrEmptyUtterance is returned when Handle is called without any text.
var ErrEmptyUtterance = errors.New("utterance is empty")

// Tools is the tool layer the dispatcher drives.
type Tools interface {
	Execute(ctx context.Context, userID string, name model.ToolName, params map[string]string) model.ToolResult
	Lookup(ctx context.Context, userID string, filter model.StatusFilter) ([]model.TaskSummary, error)
}

// Config tunes the dispatcher.
type Config struct {
	HistoryWindow     int
	ToolTimeout       time.Duration
	ClassifierTimeout time.Duration
	ConfirmUpdates    bool
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:     DefaultHistoryWindow,
		ToolTimeout:       500 * time.Millisecond,
		ClassifierTimeout: 3 * time.Second,
	}
}

// Result is the outcome of one turn.
type Result struct {
	ResponseText string
	// ToolCalls lists the calls actually executed this turn. It is empty
	// while awaiting confirmation or clarification.
	ToolCalls []model.ToolCall
	Intent    model.Intent
	// Pending must be stored on the assistant message so the next turn sees it.
	Pending *model.PendingConfirmation
	// Events are failures worth recording on the conversation log.
	Events []model.ConversationEvent
}

// Dispatcher sequences context building, extraction, confirmation and tool
// execution for a single incoming message.
type Dispatcher struct {
	tools     Tools
	extractor *Extractor
	confirm   *Controller
	cfg       Config
	logger    *logger.Logger
	tracer    trace.Tracer

	readBackoff func() backoff.BackOff
}

// NewDispatcher creates a dispatcher. classifier may be nil.
func NewDispatcher(tools Tools, classifier Classifier, cfg Config, log *logger.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = def.ToolTimeout
	}
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = def.ClassifierTimeout
	}

	return &Dispatcher{
		tools:     tools,
		extractor: NewExtractor(classifier, cfg.ClassifierTimeout, log),
		confirm:   NewController(cfg.ConfirmUpdates),
		cfg:       cfg,
		logger:    log,
		tracer:    otel.Tracer("github.com/capitalize-ai/task-agent/internal/agent"),
		readBackoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1)
		},
	}
}

// Handle processes one user message against the prior history. Turns of the
// same conversation must be serialised by the caller.
func (d *Dispatcher) Handle(ctx context.Context, history []model.Message, utterance, userID string) (*Result, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}

	ctx, span := d.tracer.Start(ctx, "agent.Handle", trace.WithAttributes(
		attribute.Int("history.length", len(history)),
	))
	defer span.End()

	log := d.logger.With(zap.String("user_id", userID))
	snap := BuildContext(history, d.cfg.HistoryWindow)

	var res *Result
	if snap.Awaiting() {
		res = d.handleReply(ctx, log, snap.Pending, utterance, userID)
	} else {
		res = d.handleIntent(ctx, log, snap, utterance, userID)
	}

	span.SetAttributes(
		attribute.String("intent", string(res.Intent.Kind)),
		attribute.Int("tool_calls", len(res.ToolCalls)),
		attribute.Bool("awaiting_confirmation", res.Pending != nil),
	)
	log.Debug("turn handled",
		zap.String("intent", string(res.Intent.Kind)),
		zap.Int("tool_calls", len(res.ToolCalls)),
		zap.Bool("awaiting_confirmation", res.Pending != nil),
	)
	return res, nil
}

func (d *Dispatcher) handleReply(ctx context.Context, log *logger.Logger, pending *model.PendingConfirmation, utterance, userID string) *Result {
	decision := d.confirm.OnReply(pending, utterance)
	res := &Result{Intent: model.Intent{Kind: model.IntentKind(pending.ToolName), TaskID: pending.Parameters[model.ParamTaskID], TaskTitle: pending.TaskTitle}}

	switch decision.Action {
	case ActionExecutePending:
		metrics.RecordConfirmation(string(pending.ToolName), "confirmed")
		call := d.invoke(ctx, log, userID, pending.ToolName, pending.Parameters, res)
		if call.Result.OK() {
			res.ResponseText = successText(call, "")
		} else {
			res.ResponseText = errorText(call)
		}
	case ActionCancel:
		metrics.RecordConfirmation(string(pending.ToolName), "declined")
		res.ResponseText = cancelText(pending)
	default:
		metrics.RecordConfirmation(string(pending.ToolName), "reprompted")
		res.Pending = pending
		res.ResponseText = msgYesOrNo + " " + pending.Prompt
	}
	return res
}

func (d *Dispatcher) handleIntent(ctx context.Context, log *logger.Logger, snap *Snapshot, utterance, userID string) *Result {
	ex := d.extractor.Extract(ctx, utterance, snap)
	intent := ex.Intent
	res := &Result{Intent: intent}
	metrics.RecordIntent(string(intent.Kind), string(ex.Source))

	if ex.FallbackErr != nil {
		res.Events = append(res.Events, model.ConversationEvent{
			Type:   model.EventTypeClassifierError,
			Reason: "intent classifier unavailable",
		})
	}

	switch intent.Kind {
	case model.IntentAddTask:
		params := map[string]string{model.ParamTitle: intent.Title}
		if intent.Description != "" {
			params[model.ParamDescription] = intent.Description
		}
		d.respond(d.invoke(ctx, log, userID, model.ToolAddTask, params, res), res, "")

	case model.IntentListTasks:
		status := intent.Status
		if status == "" {
			status = model.StatusAll
		}
		params := map[string]string{model.ParamStatus: string(status)}
		d.respond(d.invoke(ctx, log, userID, model.ToolListTasks, params, res), res, status)

	default:
		if intent.NeedsTask() {
			d.handleTaskIntent(ctx, log, ex, utterance, userID, res)
			return res
		}
		res.ResponseText = msgUnknown
	}
	return res
}

func (d *Dispatcher) handleTaskIntent(ctx context.Context, log *logger.Logger, ex Extraction, utterance, userID string, res *Result) {
	intent := ex.Intent
	tool := intent.Kind.Tool()

	ref, ok, text := d.resolveTask(ctx, ex, utterance, userID)
	metrics.RecordResolution(string(ref.Rule))
	if !ok {
		res.ResponseText = text
		return
	}
	res.Intent.TaskID = ref.Task.ID
	res.Intent.TaskTitle = ref.Task.Title

	params := map[string]string{model.ParamTaskID: ref.Task.ID}
	if tool == model.ToolUpdateTask {
		if intent.Title == "" && intent.Description == "" {
			res.ResponseText = fmt.Sprintf("What would you like to change about %q? You can give me a new title or a new description.", ref.Task.Title)
			return
		}
		if intent.Title != "" {
			params[model.ParamTitle] = intent.Title
		}
		if intent.Description != "" {
			params[model.ParamDescription] = intent.Description
		}
	}

	decision := d.confirm.OnIntent(tool, params, ref.Task.Title)
	if decision.Action == ActionAwait {
		metrics.RecordConfirmation(string(tool), "requested")
		res.Pending = decision.Pending
		res.ResponseText = decision.Pending.Prompt
		return
	}

	call := d.invoke(ctx, log, userID, tool, params, res)
	if tool == model.ToolUpdateTask && call.Result.OK() {
		res.ResponseText = fmt.Sprintf("Okay, I'll %s. Done.", describeChange(params, ref.Task.Title))
		return
	}
	d.respond(call, res, "")
}

// resolveTask returns the task the intent targets. When context cannot
// answer, the user's tasks are consulted: a unique title match is accepted,
// as is a user's only candidate task when the reference names nothing in
// particular. Otherwise the returned text asks the user.
func (d *Dispatcher) resolveTask(ctx context.Context, ex Extraction, utterance, userID string) (Resolution, bool, string) {
	if ex.Resolution.Resolved() {
		return ex.Resolution, true, ""
	}
	if ex.Resolution.Ambiguous {
		return ex.Resolution, false, msgAmbiguousTask
	}
	if ex.Resolution.Rule == RuleOrdinal {
		return ex.Resolution, false, msgWhichTask
	}

	filter := model.StatusAll
	if ex.Intent.Kind == model.IntentCompleteTask {
		filter = model.StatusPending
	}

	lctx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	tasks, err := d.tools.Lookup(lctx, userID, filter)
	if err != nil {
		d.logger.Warn("task lookup failed", zap.String("user_id", userID), zap.Error(err))
		return Resolution{Rule: RuleNone}, false, msgServerError
	}
	if len(tasks) == 0 {
		return Resolution{Rule: RuleNone}, false, noTasksText(filter)
	}

	ref := ex.Intent.Reference
	if ref == "" {
		ref = utterance
	}
	match := MatchTitle(ref, refsFromSummaries(tasks))
	switch {
	case match.Resolved():
		match.Rule = RuleStore
		return match, true, ""
	case match.Ambiguous:
		return match, false, msgAmbiguousTask
	case len(tasks) == 1 && len(contentWords(ref)) == 0:
		t := refsFromSummaries(tasks)[0]
		return Resolution{Task: &t, Rule: RuleStore}, true, ""
	}
	return Resolution{Rule: RuleNone}, false, msgWhichTask
}

// invoke executes one tool call with a timeout, records it on res and
// returns it. list_tasks is retried once on a server error; mutating tools
// never are.
func (d *Dispatcher) invoke(ctx context.Context, log *logger.Logger, userID string, name model.ToolName, params map[string]string, res *Result) model.ToolCall {
	ctx, span := d.tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool", string(name))))
	defer span.End()

	start := time.Now()
	var result model.ToolResult
	run := func() error {
		tctx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
		defer cancel()
		result = d.tools.Execute(tctx, userID, name, params)
		if result.Error != nil && result.Error.Kind == model.ErrServer {
			return result.Error
		}
		return nil
	}

	if name == model.ToolListTasks {
		_ = backoff.Retry(run, backoff.WithContext(d.readBackoff(), ctx))
	} else {
		_ = run()
	}

	call := model.ToolCall{Name: name, Parameters: params, Result: result}
	res.ToolCalls = append(res.ToolCalls, call)

	outcome := "success"
	if e := result.Error; e != nil {
		outcome = string(e.Kind)
		span.SetStatus(codes.Error, string(e.Kind))
		d.recordFailure(log, call, res)
	}
	metrics.RecordToolCall(string(name), outcome, time.Since(start).Seconds())
	return call
}

func (d *Dispatcher) recordFailure(log *logger.Logger, call model.ToolCall, res *Result) {
	e := call.Result.Error
	log = log.WithTool(string(call.Name))
	switch e.Kind {
	case model.ErrAuthorization:
		log.Error("tool call denied",
			zap.Any("parameters", call.Parameters),
			zap.String("reason", e.Message),
		)
		res.Events = append(res.Events, model.ConversationEvent{
			Type:     model.EventTypeAccessDenied,
			Reason:   e.Message,
			Metadata: map[string]any{"tool": string(call.Name)},
		})
	case model.ErrServer:
		log.Warn("tool call failed", zap.String("reason", e.Message))
		eventType := model.EventTypeError
		if e.Reason == model.ReasonTimeout {
			eventType = model.EventTypeTimeout
		}
		res.Events = append(res.Events, model.ConversationEvent{
			Type:     eventType,
			Reason:   e.Message,
			Metadata: map[string]any{"tool": string(call.Name)},
		})
	default:
		log.Debug("tool call rejected", zap.String("kind", string(e.Kind)))
	}
}

func (d *Dispatcher) respond(call model.ToolCall, res *Result, filter model.StatusFilter) {
	if call.Result.OK() {
		res.ResponseText = successText(call, filter)
		return
	}
	res.ResponseText = errorText(call)
}
