// Package dialogue owns per-user conversational state: pending slot
// requests, the dedup window and reply history.
//
// A user is either Idle or AwaitingSlot. Each message is run through Step,
// which returns a Decision for the orchestrator and mutates the user's State.
// Step never reads the wall clock; the caller passes the current time in.
//
// Concurrency: Machine serializes all access to one user's state with a
// per-user lock, taken by Begin and released by Session.End. Different users
// never contend.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Kanri/internal/kanri/nlp"
	"github.com/bdobrica/Kanri/internal/kanri/normalize"
)

const (
	DefaultSlotTTL     = 120 * time.Second
	DefaultDedupWindow = 30 * time.Second
)

// Config tunes the machine's timeouts. Zero values select the defaults.
type Config struct {
	SlotTTL     time.Duration
	DedupWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlotTTL <= 0 {
		c.SlotTTL = DefaultSlotTTL
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	return c
}

// Parser is the slice of nlp.Parser the machine needs.
type Parser interface {
	Parse(text string) nlp.ParseResult
	MatchOnly(raw string, intents ...nlp.Intent) (nlp.ParseResult, bool)
	ExtractFor(intent nlp.Intent, raw string) nlp.Entities
	Normalize(raw string) normalize.Text
}

// Kind classifies a Decision.
type Kind string

const (
	// KindExecute: run Parse.Intent with Parse.Entities now.
	KindExecute Kind = "execute"
	// KindPrompt: a new slot request was opened; ask for Slot.Missing.
	KindPrompt Kind = "slot_prompt"
	// KindReprompt: the answer did not supply Slot.Missing; ask again.
	KindReprompt Kind = "reprompt"
	// KindDisambiguate: the message was not understood well enough to act.
	KindDisambiguate Kind = "disambiguation"
	// KindDuplicate: the same text arrived inside the dedup window.
	KindDuplicate Kind = "duplicate"
	// KindCancelled: a pending slot was dropped at the user's request.
	KindCancelled Kind = "cancelled"
)

// Decision is what Step resolved a message to.
type Decision struct {
	Kind  Kind
	Parse nlp.ParseResult
	// Slot is the pending request for KindPrompt and KindReprompt, and the
	// dropped one for KindCancelled.
	Slot *SlotRequest
	// FromSlot is true when a KindExecute completes an earlier request.
	FromSlot bool
}

// Machine is safe for concurrent use.
type Machine struct {
	parser Parser
	store  Store
	cfg    Config
	locks  *lockTable
}

// NewMachine returns a Machine. A nil store selects a MemoryStore.
func NewMachine(p Parser, store Store, cfg Config) *Machine {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Machine{parser: p, store: store, cfg: cfg.withDefaults(), locks: newLockTable()}
}

// Config returns the effective configuration.
func (m *Machine) Config() Config { return m.cfg }

// Session is exclusive access to one user's State. It must be ended.
type Session struct {
	m       *Machine
	userID  string
	State   *State
	release func()
}

// Begin waits for the user's lock and loads their state. A load failure is
// logged and the user starts from a fresh state rather than failing the
// message.
func (m *Machine) Begin(ctx context.Context, userID string) (*Session, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("dialogue: wait for user lock: %w", err)
	}
	st, err := m.store.Load(ctx, userID)
	if err != nil {
		slog.Warn("dialogue: load state failed; starting fresh", "user", userID, "err", err)
		st = NewState()
	}
	return &Session{m: m, userID: userID, State: st, release: release}, nil
}

// End saves the state and releases the lock. It is safe to call twice; only
// the first call saves.
func (s *Session) End(ctx context.Context) error {
	if s.release == nil {
		return nil
	}
	defer func() {
		s.release()
		s.release = nil
	}()
	if err := s.m.store.Save(ctx, s.userID, s.State); err != nil {
		return fmt.Errorf("dialogue: save state: %w", err)
	}
	return nil
}

// Step is a convenience that runs one message through a whole session.
func (m *Machine) Step(ctx context.Context, userID, text string, now time.Time) (Decision, error) {
	sess, err := m.Begin(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	d := sess.Step(text, now)
	return d, sess.End(ctx)
}

// DedupKey folds text for duplicate detection: lower-cased, whitespace runs
// collapsed.
func DedupKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Step resolves one message against the session's state.
func (s *Session) Step(text string, now time.Time) Decision {
	st, cfg := s.State, s.m.cfg

	key := DedupKey(text)
	if key != "" && st.LastMessage != nil && st.LastMessage.Key == key && now.Sub(st.LastMessage.At) < cfg.DedupWindow {
		return Decision{Kind: KindDuplicate}
	}
	st.LastMessage = &LastMessage{Key: key, At: now}

	if p := st.Pending; p != nil {
		if p.Expired(now, cfg.SlotTTL) {
			slog.Debug("dialogue: slot expired", "user", s.userID, "intent", p.Intent, "missing", p.Missing)
			st.Pending = nil
		} else if d, ok := s.answer(p, text, now); ok {
			return d
		}
	}
	return s.fresh(text, now)
}

// answer tries to read text as the reply to p. ok is false when the slot was
// dropped and the message should be classified fresh.
func (s *Session) answer(p *SlotRequest, text string, now time.Time) (Decision, bool) {
	st := s.State

	if parsed, ok := s.m.parser.MatchOnly(text, nlp.IntentCancel, nlp.IntentConfirmNo); ok {
		// A bare "no" cancels only a task-number question; for a reason or
		// title it is the answer.
		if parsed.Intent == nlp.IntentCancel || p.Missing == MissingTaskIndex {
			st.Pending = nil
			return Decision{Kind: KindCancelled, Parse: parsed, Slot: p}, true
		}
	}

	switch p.Missing {
	case MissingTaskIndex:
		got := s.m.parser.ExtractFor(p.Intent, text)
		if got.TaskIndex == nil && len(got.TaskIndices) == 0 {
			if p.Reprompts == 0 {
				p.Reprompts++
				return Decision{Kind: KindReprompt, Slot: p}, true
			}
			st.Pending = nil
			return Decision{}, false
		}
		known := p.Known.Merge(got)
		if next := Missing(p.Intent, known); next != MissingNone {
			st.Pending = &SlotRequest{
				Intent:     p.Intent,
				Known:      known,
				Missing:    next,
				Confidence: p.Confidence,
				CreatedAt:  now,
			}
			return Decision{Kind: KindPrompt, Slot: st.Pending, Parse: s.slotResult(p, known, text)}, true
		}
		st.Pending = nil
		return Decision{Kind: KindExecute, FromSlot: true, Parse: s.slotResult(p, known, text)}, true

	case MissingReason, MissingTitle:
		value := strings.TrimSpace(text)
		if !nlp.Meaningful(value) && p.Reprompts == 0 {
			p.Reprompts++
			return Decision{Kind: KindReprompt, Slot: p}, true
		}
		// Second failure: take the raw text as an open-ended answer.
		if value == "" {
			value = text
		}
		var add nlp.Entities
		if p.Missing == MissingReason {
			add.Reason = &value
		} else {
			add.Title = &value
		}
		known := p.Known.Merge(add)
		st.Pending = nil
		return Decision{Kind: KindExecute, FromSlot: true, Parse: s.slotResult(p, known, text)}, true
	}

	st.Pending = nil
	return Decision{}, false
}

func (s *Session) slotResult(p *SlotRequest, known nlp.Entities, text string) nlp.ParseResult {
	return nlp.ParseResult{
		Intent:     p.Intent,
		Confidence: p.Confidence,
		Entities:   known,
		Normalized: s.m.parser.Normalize(text),
		Original:   text,
	}
}

func (s *Session) fresh(text string, now time.Time) Decision {
	parsed := s.m.parser.Parse(text)
	if !parsed.Actionable() {
		return Decision{Kind: KindDisambiguate, Parse: parsed}
	}
	if missing := Missing(parsed.Intent, parsed.Entities); missing != MissingNone {
		s.State.Pending = &SlotRequest{
			Intent:     parsed.Intent,
			Known:      parsed.Entities,
			Missing:    missing,
			Confidence: parsed.Confidence,
			CreatedAt:  now,
		}
		return Decision{Kind: KindPrompt, Parse: parsed, Slot: s.State.Pending}
	}
	return Decision{Kind: KindExecute, Parse: parsed}
}

// Missing returns the first required entity intent still lacks, or
// MissingNone. BlockedTask asks for the index before the reason.
func Missing(intent nlp.Intent, e nlp.Entities) MissingField {
	switch intent {
	case nlp.IntentDoneTask, nlp.IntentInProgressTask:
		if len(e.Indices()) == 0 {
			return MissingTaskIndex
		}
	case nlp.IntentShowTask:
		if e.TaskIndex == nil {
			return MissingTaskIndex
		}
	case nlp.IntentBlockedTask:
		if e.TaskIndex == nil {
			return MissingTaskIndex
		}
		if e.Reason == nil {
			return MissingReason
		}
	case nlp.IntentCreateTask:
		if e.Title == nil {
			return MissingTitle
		}
	}
	return MissingNone
}
