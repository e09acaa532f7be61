// Package nlp turns normalized chat text into an intent, a confidence score
// and the entities the intent needs.
//
// Classification is two-tier. Tier 1 walks the rule table top to bottom and
// returns the first regular expression that matches, with the rule's fixed
// confidence. Tier 2 runs only when no rule matched: it scores the text
// against every intent's example phrases with a pluggable Similarity and
// returns the best intent when the score clears FuzzyFloor.
//
// Nothing here has side effects. A result below ActionThreshold is still a
// valid result; deciding what to do with it belongs to the dialogue layer.
package nlp

import (
	"errors"
	"fmt"
)

// ErrUnknownIntent is returned when a rule table names an intent outside the
// closed set.
var ErrUnknownIntent = errors.New("nlp: unknown intent")

// Intent is one of a closed set of tags. The string value is the snake_case
// name used in the rule table and in the audit log.
type Intent string

const (
	IntentGreet          Intent = "greet"
	IntentFarewell       Intent = "farewell"
	IntentThanks         Intent = "thanks"
	IntentHowAreYou      Intent = "how_are_you"
	IntentWhoAreYou      Intent = "who_are_you"
	IntentCompliment     Intent = "compliment"
	IntentLaugh          Intent = "laugh"
	IntentHelp           Intent = "help"
	IntentListTasks      Intent = "list_tasks"
	IntentListPending    Intent = "list_pending"
	IntentListDone       Intent = "list_done"
	IntentShowTask       Intent = "show_task"
	IntentCreateTask     Intent = "create_task"
	IntentDoneTask       Intent = "done_task"
	IntentInProgressTask Intent = "in_progress_task"
	IntentBlockedTask    Intent = "blocked_task"
	IntentProgress       Intent = "progress"
	IntentConfirmYes     Intent = "confirm_yes"
	IntentConfirmNo      Intent = "confirm_no"
	IntentCancel         Intent = "cancel"

	// IntentUnknown is the classifier's fallback. It never appears in a rule
	// table.
	IntentUnknown Intent = "unknown"
)

var declarable = map[Intent]struct{}{
	IntentGreet: {}, IntentFarewell: {}, IntentThanks: {}, IntentHowAreYou: {},
	IntentWhoAreYou: {}, IntentCompliment: {}, IntentLaugh: {}, IntentHelp: {},
	IntentListTasks: {}, IntentListPending: {}, IntentListDone: {},
	IntentShowTask: {}, IntentCreateTask: {}, IntentDoneTask: {},
	IntentInProgressTask: {}, IntentBlockedTask: {}, IntentProgress: {},
	IntentConfirmYes: {}, IntentConfirmNo: {}, IntentCancel: {},
}

// ParseIntent resolves a rule-table name. IntentUnknown is rejected because
// no rule may produce it.
func ParseIntent(name string) (Intent, error) {
	i := Intent(name)
	if _, ok := declarable[i]; !ok {
		return IntentUnknown, fmt.Errorf("%w: %q", ErrUnknownIntent, name)
	}
	return i, nil
}

// String returns the wire name.
func (i Intent) String() string { return string(i) }

// MultiIndex reports whether the intent accepts a list of task indices.
func (i Intent) MultiIndex() bool {
	return i == IntentDoneTask || i == IntentInProgressTask
}

// TargetsTask reports whether the intent needs at least one task index.
func (i Intent) TargetsTask() bool {
	switch i {
	case IntentDoneTask, IntentInProgressTask, IntentBlockedTask, IntentShowTask:
		return true
	}
	return false
}

// Mutates reports whether executing the intent changes the task ledger.
func (i Intent) Mutates() bool {
	switch i {
	case IntentDoneTask, IntentInProgressTask, IntentBlockedTask, IntentCreateTask:
		return true
	}
	return false
}
