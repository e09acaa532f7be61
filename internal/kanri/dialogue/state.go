package dialogue

import (
	"maps"
	"slices"
	"time"

	"github.com/bdobrica/Kanri/internal/kanri/nlp"
)

// MissingField names the entity a SlotRequest is waiting for.
type MissingField string

const (
	MissingNone      MissingField = ""
	MissingTaskIndex MissingField = "task_index"
	MissingReason    MissingField = "reason"
	MissingTitle     MissingField = "title"
)

// SlotRequest is a recognized intent parked until the user supplies one
// missing entity.
type SlotRequest struct {
	Intent     nlp.Intent   `json:"intent"`
	Known      nlp.Entities `json:"known"`
	Missing    MissingField `json:"missing"`
	Confidence float64      `json:"confidence"`
	CreatedAt  time.Time    `json:"created_at"`
	// Reprompts counts failed answers; the budget is one.
	Reprompts int `json:"reprompts"`
}

// Expired reports whether the request is too old to answer at now.
func (r *SlotRequest) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) >= ttl
}

// LastMessage is the dedup record: the folded text and when it arrived.
type LastMessage struct {
	Key string    `json:"key"`
	At  time.Time `json:"at"`
}

// State is everything Kanri remembers about one user between messages.
type State struct {
	Pending     *SlotRequest `json:"pending,omitempty"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	// LastReplyIDs holds the most recent template indices per
	// "category/subcategory", newest last.
	LastReplyIDs map[string][]int `json:"last_reply_ids,omitempty"`
}

// NewState returns the initial state: idle, no dedup record, no history.
func NewState() *State {
	return &State{LastReplyIDs: make(map[string][]int)}
}

// Awaiting reports whether a slot request is pending.
func (s *State) Awaiting() bool { return s.Pending != nil }

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{LastReplyIDs: make(map[string][]int, len(s.LastReplyIDs))}
	if s.Pending != nil {
		p := *s.Pending
		p.Known = nlp.Entities{}.Merge(s.Pending.Known)
		out.Pending = &p
	}
	if s.LastMessage != nil {
		m := *s.LastMessage
		out.LastMessage = &m
	}
	for k, v := range maps.All(s.LastReplyIDs) {
		out.LastReplyIDs[k] = slices.Clone(v)
	}
	return out
}

// History returns the recent picks for key.
func (s *State) History(key string) []int {
	return s.LastReplyIDs[key]
}

// Remember appends id to the history for key, keeping at most limit entries.
func (s *State) Remember(key string, id, limit int) {
	if s.LastReplyIDs == nil {
		s.LastReplyIDs = make(map[string][]int)
	}
	h := append(s.LastReplyIDs[key], id)
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	s.LastReplyIDs[key] = h
}
