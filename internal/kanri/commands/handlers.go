package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bdobrica/Kanri/internal/kanri/dialogue"
	"github.com/bdobrica/Kanri/internal/kanri/humanizer"
	"github.com/bdobrica/Kanri/internal/kanri/nlp"
	"github.com/bdobrica/Kanri/internal/kanri/observability"
	"github.com/bdobrica/Kanri/internal/kanri/tasks"
)

// call carries one execution through a handler.
type call struct {
	msg     Message
	state   *dialogue.State
	parse   nlp.ParseResult
	traceID string
}

// vars returns the base template variables plus the given key/value pairs.
func (c *call) vars(kv ...string) humanizer.Vars {
	v := humanizer.Vars{"name": c.msg.Name}
	for i := 0; i+1 < len(kv); i += 2 {
		v[kv[i]] = kv[i+1]
	}
	return v
}

// handler executes one intent. A non-nil SideEffect on the returned reply
// marks a ledger call; errors from the ledger are returned unrendered.
type handler func(ctx context.Context, c *call) (Reply, error)

func (e *Engine) register(i nlp.Intent, h handler) {
	e.handlers[i] = h
}

func (e *Engine) registerHandlers() {
	for _, i := range []nlp.Intent{
		nlp.IntentFarewell, nlp.IntentThanks, nlp.IntentHowAreYou,
		nlp.IntentWhoAreYou, nlp.IntentCompliment, nlp.IntentLaugh,
	} {
		e.register(i, e.chat(string(i), "default"))
	}
	e.register(nlp.IntentConfirmYes, e.chat("confirm", "yes"))
	e.register(nlp.IntentConfirmNo, e.chat("confirm", "no"))
	e.register(nlp.IntentCancel, e.chat("cancel", "nothing"))
	e.register(nlp.IntentGreet, e.handleGreet)
	e.register(nlp.IntentHelp, e.handleHelp)

	e.register(nlp.IntentListTasks, e.listing("list", func(tasks.Task) bool { return true }))
	e.register(nlp.IntentListPending, e.listing("pending", func(t tasks.Task) bool { return t.Status != tasks.StatusDone }))
	e.register(nlp.IntentListDone, e.listing("done_list", func(t tasks.Task) bool { return t.Status == tasks.StatusDone }))
	e.register(nlp.IntentShowTask, e.handleShow)
	e.register(nlp.IntentProgress, e.handleProgress)
	e.register(nlp.IntentCreateTask, e.handleCreate)
	e.register(nlp.IntentDoneTask, e.marking("done", func(ctx context.Context, userID string, idx []int) ([]tasks.Task, error) {
		return e.cfg.Tasks.MarkDone(ctx, userID, idx)
	}))
	e.register(nlp.IntentInProgressTask, e.marking("in_progress", func(ctx context.Context, userID string, idx []int) ([]tasks.Task, error) {
		return e.cfg.Tasks.MarkInProgress(ctx, userID, idx)
	}))
	e.register(nlp.IntentBlockedTask, e.handleBlocked)
}

// execute runs the handler for an actionable parse, audits ledger calls and
// renders ledger failures.
func (e *Engine) execute(ctx context.Context, c *call) Reply {
	intent := c.parse.Intent
	h, ok := e.handlers[intent]
	if !ok {
		observability.WithTrace(ctx).Warn("kanri: no handler for intent", "intent", intent)
		return Reply{
			Text:    e.say(c.state, "disambiguation", "default", c.vars("options", e.options(c.parse))),
			Outcome: OutcomeDisambiguation,
			Parse:   c.parse,
		}
	}

	r, err := h(ctx, c)
	r.IntentExecuted = intent
	r.Parse = c.parse
	if r.SideEffect != nil {
		e.audit(ctx, c, r.SideEffect, err)
	}
	if err == nil {
		if r.Outcome == "" {
			r.Outcome = OutcomeExecuted
		}
		return r
	}

	observability.WithTrace(ctx).Warn("kanri: capability call failed",
		"intent", intent, "side_effect", r.SideEffect.String(), "err", err)
	r.Outcome = OutcomeFailure
	var nf *tasks.NotFoundError
	switch {
	case errors.As(err, &nf):
		r.Text = e.say(c.state, "error", "not_found", c.vars("number", strconv.Itoa(nf.Index)))
	case errors.Is(err, tasks.ErrTaskNotFound):
		r.Text = e.say(c.state, "error", "not_found", c.vars("number", ""))
	default:
		r.Text = e.say(c.state, "error", "failure", c.vars())
	}
	return r
}

func (e *Engine) audit(ctx context.Context, c *call, se *SideEffect, callErr error) {
	if e.cfg.Auditor == nil {
		return
	}
	result, errMsg := "success", ""
	if callErr != nil {
		result, errMsg = "error", callErr.Error()
	}
	payload := map[string]any{
		"confidence": c.parse.Confidence,
		"original":   c.parse.Original,
	}
	if se.Detail != "" {
		payload["detail"] = se.Detail
	}
	target := joinInts(se.Indices, ",")
	if err := e.cfg.Auditor.WriteAudit(ctx, c.traceID, c.msg.UserID, se.Capability, target, result, payload, errMsg); err != nil {
		observability.WithTrace(ctx).Warn("kanri: audit write failed", "err", err)
	}
}

// capability bounds one TaskStore call.
func (e *Engine) capability(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.CapabilityTimeout)
}

// ----------------------------------------------------------------------------
// Conversational intents
// ----------------------------------------------------------------------------

func (e *Engine) chat(category, subcategory string) handler {
	return func(_ context.Context, c *call) (Reply, error) {
		return Reply{Text: e.say(c.state, category, subcategory, c.vars()), Outcome: OutcomeChat}, nil
	}
}

func (e *Engine) handleGreet(_ context.Context, c *call) (Reply, error) {
	part := humanizer.DaypartOf(c.msg.Now.In(e.cfg.Location))
	return Reply{Text: e.say(c.state, "greet", string(part), c.vars()), Outcome: OutcomeChat}, nil
}

func (e *Engine) handleHelp(_ context.Context, c *call) (Reply, error) {
	topic := "general"
	if t := c.parse.Entities.HelpTopic; t != nil && e.cfg.Replies.Has("help", *t) {
		topic = *t
	}
	return Reply{Text: e.say(c.state, "help", topic, c.vars()), Outcome: OutcomeChat}, nil
}

// ----------------------------------------------------------------------------
// Ledger intents
// ----------------------------------------------------------------------------

func (e *Engine) listing(category string, keep func(tasks.Task) bool) handler {
	return func(ctx context.Context, c *call) (Reply, error) {
		r := Reply{SideEffect: &SideEffect{Capability: "list_tasks"}}
		cctx, cancel := e.capability(ctx)
		defer cancel()
		all, err := e.cfg.Tasks.ListTasks(cctx, c.msg.UserID)
		if err != nil {
			return r, fmt.Errorf("list tasks: %w", err)
		}
		var shown []tasks.Task
		for _, t := range all {
			if keep(t) {
				shown = append(shown, t)
			}
		}
		if len(shown) == 0 {
			r.Text = e.say(c.state, category, "empty", c.vars())
			return r, nil
		}
		r.Text = e.say(c.state, category, "all", c.vars(
			"list", renderList(shown),
			"count", strconv.Itoa(len(shown)),
		))
		return r, nil
	}
}

func (e *Engine) handleShow(ctx context.Context, c *call) (Reply, error) {
	idx := *c.parse.Entities.TaskIndex
	r := Reply{SideEffect: &SideEffect{Capability: "list_tasks", Indices: []int{idx}}}
	cctx, cancel := e.capability(ctx)
	defer cancel()
	all, err := e.cfg.Tasks.ListTasks(cctx, c.msg.UserID)
	if err != nil {
		return r, fmt.Errorf("show task: %w", err)
	}
	t, ok := findTask(all, idx)
	if !ok {
		return r, &tasks.NotFoundError{Index: idx}
	}
	vars := c.vars(
		"number", strconv.Itoa(t.Index),
		"title", t.Title,
		"status", t.Status.Label(),
		"reason", t.BlockedReason,
	)
	sub := "detail"
	if t.Status == tasks.StatusBlocked && t.BlockedReason != "" {
		sub = "blocked"
	}
	r.Text = e.say(c.state, "show", sub, vars)
	return r, nil
}

func (e *Engine) handleProgress(ctx context.Context, c *call) (Reply, error) {
	r := Reply{SideEffect: &SideEffect{Capability: "get_progress"}}
	cctx, cancel := e.capability(ctx)
	defer cancel()
	p, err := e.cfg.Tasks.GetProgress(cctx, c.msg.UserID)
	if err != nil {
		return r, fmt.Errorf("get progress: %w", err)
	}
	r.Text = e.say(c.state, "progress", progressBucket(p), c.vars(
		"percent", strconv.Itoa(p.Percent()),
		"done", strconv.Itoa(p.Done),
		"total", strconv.Itoa(p.Total),
	))
	return r, nil
}

func (e *Engine) handleCreate(ctx context.Context, c *call) (Reply, error) {
	title := *c.parse.Entities.Title
	r := Reply{SideEffect: &SideEffect{Capability: "create_task", Detail: title}}
	cctx, cancel := e.capability(ctx)
	defer cancel()
	t, err := e.cfg.Tasks.CreateTask(cctx, c.msg.UserID, title)
	if err != nil {
		return r, fmt.Errorf("create task: %w", err)
	}
	r.SideEffect.Indices = []int{t.Index}
	r.Text = e.say(c.state, "create", "single", c.vars("number", strconv.Itoa(t.Index), "title", t.Title))
	return r, nil
}

type markFunc func(ctx context.Context, userID string, indices []int) ([]tasks.Task, error)

// marking handles done and in-progress, which take one or more indices.
func (e *Engine) marking(category string, mark markFunc) handler {
	capability := "mark_" + category
	return func(ctx context.Context, c *call) (Reply, error) {
		indices := c.parse.Entities.Indices()
		r := Reply{SideEffect: &SideEffect{Capability: capability, Indices: indices}}
		cctx, cancel := e.capability(ctx)
		defer cancel()
		updated, err := mark(cctx, c.msg.UserID, indices)
		if err != nil {
			return r, fmt.Errorf("%s: %w", capability, err)
		}
		if len(updated) == 1 {
			t := updated[0]
			r.Text = e.say(c.state, category, "single", c.vars("number", strconv.Itoa(t.Index), "title", t.Title))
			return r, nil
		}
		r.Text = e.say(c.state, category, "multiple", c.vars("numbers", joinAnd(intStrings(indices))))
		return r, nil
	}
}

func (e *Engine) handleBlocked(ctx context.Context, c *call) (Reply, error) {
	idx := *c.parse.Entities.TaskIndex
	reason := *c.parse.Entities.Reason
	r := Reply{SideEffect: &SideEffect{Capability: "mark_blocked", Indices: []int{idx}, Detail: reason}}
	cctx, cancel := e.capability(ctx)
	defer cancel()
	t, err := e.cfg.Tasks.MarkBlocked(cctx, c.msg.UserID, idx, reason)
	if err != nil {
		return r, fmt.Errorf("mark_blocked: %w", err)
	}
	r.Text = e.say(c.state, "blocked", "single", c.vars(
		"number", strconv.Itoa(t.Index),
		"title", t.Title,
		"reason", reason,
	))
	return r, nil
}
