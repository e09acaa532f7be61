// Package commands is Kanri's orchestrator: it runs a message through the
// dialogue machine, executes the resolved intent against the task ledger and
// renders the reply.
//
// Side effects only happen on the execute path. Classification, slot prompts
// and disambiguation never call the ledger. Every ledger failure is turned
// into a reply here; nothing past Process returns an error to the user's
// transport except a failed Send.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Kanri/common/trace"
	"github.com/bdobrica/Kanri/internal/kanri/dialogue"
	"github.com/bdobrica/Kanri/internal/kanri/humanizer"
	"github.com/bdobrica/Kanri/internal/kanri/nlp"
	"github.com/bdobrica/Kanri/internal/kanri/observability"
	"github.com/bdobrica/Kanri/internal/kanri/tasks"
)

// DefaultCapabilityTimeout bounds each task-store call.
const DefaultCapabilityTimeout = 5 * time.Second

// fallbackText is sent when a reply pool is missing from the catalog.
const fallbackText = "Desculpa, me enrolei aqui. Pode repetir?"

// TaskStore is the task-ledger capability. Indices are 1-based positions in
// the user's list; multi-index updates are all-or-nothing. An index that does
// not exist yields an error matching tasks.ErrTaskNotFound.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]tasks.Task, error)
	MarkDone(ctx context.Context, userID string, indices []int) ([]tasks.Task, error)
	MarkInProgress(ctx context.Context, userID string, indices []int) ([]tasks.Task, error)
	MarkBlocked(ctx context.Context, userID string, index int, reason string) (tasks.Task, error)
	GetProgress(ctx context.Context, userID string) (tasks.Progress, error)
	CreateTask(ctx context.Context, userID, title string) (tasks.Task, error)
}

// Sender delivers reply text to a user.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// Auditor records executed ledger calls.
type Auditor interface {
	WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload map[string]any, errorMsg string) error
}

// Describer returns the conversational phrase for an intent, or "".
type Describer interface {
	Describe(i nlp.Intent) string
}

// Message is one inbound chat message. Now is supplied by the caller; the
// engine never reads the clock.
type Message struct {
	UserID string
	Name   string
	Text   string
	Now    time.Time
}

// Outcome summarizes what Process did.
type Outcome string

const (
	OutcomeExecuted       Outcome = "executed"
	OutcomeSlotPrompt     Outcome = "slot_prompt"
	OutcomeDisambiguation Outcome = "disambiguation"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeFailure        Outcome = "failure"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeChat           Outcome = "chat"
)

// SideEffect describes the ledger call a reply came from.
type SideEffect struct {
	Capability string
	Indices    []int
	Detail     string
}

func (s *SideEffect) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(s.Capability)
	if len(s.Indices) > 0 {
		fmt.Fprintf(&b, " %v", s.Indices)
	}
	if s.Detail != "" {
		fmt.Fprintf(&b, " %q", s.Detail)
	}
	return b.String()
}

// Reply is the outbound result of one message.
type Reply struct {
	Text           string
	IntentExecuted nlp.Intent
	Outcome        Outcome
	SideEffect     *SideEffect
	Parse          nlp.ParseResult
	TraceID        string
}

// Config wires an Engine. Machine, Replies and Tasks are required.
type Config struct {
	Machine   *dialogue.Machine
	Describer Describer
	Replies   *humanizer.Selector
	Tasks     TaskStore
	Sender    Sender
	Auditor   Auditor

	// Location is used for time-of-day greetings. Defaults to UTC.
	Location *time.Location
	// CapabilityTimeout bounds each TaskStore call.
	CapabilityTimeout time.Duration
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      Config
	handlers map[nlp.Intent]handler
}

// NewEngine returns an Engine with every intent handler registered.
func NewEngine(cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = DefaultCapabilityTimeout
	}
	e := &Engine{cfg: cfg, handlers: make(map[nlp.Intent]handler)}
	e.registerHandlers()
	return e
}

// Process resolves and, when appropriate, executes one message. It never
// fails: every error becomes reply text.
func (e *Engine) Process(ctx context.Context, msg Message) Reply {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.GenerateID()
		ctx = trace.WithTraceID(ctx, traceID)
	}
	log := observability.WithTrace(ctx)

	sess, err := e.cfg.Machine.Begin(ctx, msg.UserID)
	if err != nil {
		log.Warn("kanri: could not start dialogue session", "user", msg.UserID, "err", err)
		return Reply{
			Text:    e.say(nil, "error", "failure", humanizer.Vars{"name": msg.Name}),
			Outcome: OutcomeFailure,
			TraceID: traceID,
		}
	}
	defer func() {
		if err := sess.End(context.WithoutCancel(ctx)); err != nil {
			log.Warn("kanri: could not save dialogue state", "user", msg.UserID, "err", err)
		}
	}()

	d := sess.Step(msg.Text, msg.Now)
	r := e.resolve(ctx, &call{msg: msg, state: sess.State, parse: d.Parse, traceID: traceID}, d)
	r.TraceID = traceID

	log.Info("kanri: message processed",
		"user", msg.UserID,
		"decision", d.Kind,
		"intent", r.Parse.Intent,
		"confidence", r.Parse.Confidence,
		"outcome", r.Outcome,
		"side_effect", r.SideEffect.String(),
	)
	return r
}

// Handle runs Process and sends the reply.
func (e *Engine) Handle(ctx context.Context, msg Message) (Reply, error) {
	r := e.Process(ctx, msg)
	if r.Text == "" || e.cfg.Sender == nil {
		return r, nil
	}
	if err := e.cfg.Sender.Send(ctx, msg.UserID, r.Text); err != nil {
		return r, fmt.Errorf("commands: send reply: %w", err)
	}
	return r, nil
}

func (e *Engine) resolve(ctx context.Context, c *call, d dialogue.Decision) Reply {
	switch d.Kind {
	case dialogue.KindDuplicate:
		return Reply{Text: e.say(c.state, "dedup", "default", c.vars()), Outcome: OutcomeDuplicate}

	case dialogue.KindDisambiguate:
		return Reply{
			Text:    e.say(c.state, "disambiguation", "default", c.vars("options", e.options(d.Parse))),
			Outcome: OutcomeDisambiguation,
			Parse:   d.Parse,
		}

	case dialogue.KindPrompt, dialogue.KindReprompt:
		return Reply{
			Text:    e.say(c.state, "slot", slotSubcategory(d), c.vars("number", slotNumber(d.Slot))),
			Outcome: OutcomeSlotPrompt,
			Parse:   d.Parse,
		}

	case dialogue.KindCancelled:
		return Reply{Text: e.say(c.state, "cancel", "slot", c.vars()), Outcome: OutcomeCancelled, Parse: d.Parse}

	case dialogue.KindExecute:
		return e.execute(ctx, c)
	}
	return Reply{Text: fallbackText, Outcome: OutcomeFailure, Parse: d.Parse}
}

// say picks a reply, falling back to a fixed line when the pool is missing.
func (e *Engine) say(h humanizer.History, category, subcategory string, vars humanizer.Vars) string {
	if !e.cfg.Replies.Has(category, subcategory) {
		slog.Warn("kanri: missing reply pool", "category", category, "subcategory", subcategory)
		return fallbackText
	}
	return e.cfg.Replies.Pick(h, category, subcategory, vars)
}

func slotSubcategory(d dialogue.Decision) string {
	prefix := ""
	if d.Kind == dialogue.KindReprompt {
		prefix = "reprompt_"
	}
	switch d.Slot.Missing {
	case dialogue.MissingReason:
		return prefix + "reason"
	case dialogue.MissingTitle:
		return prefix + "title"
	}
	if prefix != "" {
		return prefix + "task_index"
	}
	switch d.Slot.Intent {
	case nlp.IntentInProgressTask:
		return "task_index_in_progress"
	case nlp.IntentBlockedTask:
		return "task_index_blocked"
	case nlp.IntentShowTask:
		return "task_index_show"
	default:
		return "task_index_done"
	}
}

func slotNumber(r *dialogue.SlotRequest) string {
	if r == nil || r.Known.TaskIndex == nil {
		return ""
	}
	return fmt.Sprint(*r.Known.TaskIndex)
}

// defaultOffers are suggested when the classifier has nothing describable.
var defaultOffers = []nlp.Intent{nlp.IntentListTasks, nlp.IntentDoneTask, nlp.IntentHelp}

// options renders the two or three likeliest describable intents as a
// conversational list.
func (e *Engine) options(p nlp.ParseResult) string {
	if e.cfg.Describer == nil {
		return ""
	}
	var phrases []string
	seen := make(map[nlp.Intent]bool)
	add := func(i nlp.Intent) {
		if seen[i] || len(phrases) == 3 {
			return
		}
		if d := e.cfg.Describer.Describe(i); d != "" {
			phrases = append(phrases, d)
			seen[i] = true
		}
	}
	for _, c := range p.Candidates {
		add(c.Intent)
	}
	for _, i := range defaultOffers {
		if len(phrases) >= 2 {
			break
		}
		add(i)
	}
	return joinOr(phrases)
}
