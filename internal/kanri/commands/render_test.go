package commands

import (
	"testing"

	"github.com/bdobrica/Kanri/internal/kanri/dialogue"
	"github.com/bdobrica/Kanri/internal/kanri/nlp"
	"github.com/bdobrica/Kanri/internal/kanri/tasks"
)

func TestProgressBucket(t *testing.T) {
	tests := []struct {
		p    tasks.Progress
		want string
	}{
		{tasks.Progress{}, "empty"},
		{tasks.Progress{Total: 5}, "zero"},
		{tasks.Progress{Total: 5, Done: 2}, "low"},
		{tasks.Progress{Total: 4, Done: 2}, "mid"},
		{tasks.Progress{Total: 5, Done: 4}, "high"},
		{tasks.Progress{Total: 1000, Done: 999}, "high"},
		{tasks.Progress{Total: 3, Done: 3}, "complete"},
	}
	for _, tt := range tests {
		if got := progressBucket(tt.p); got != tt.want {
			t.Errorf("progressBucket(%+v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		items []string
		and   string
		or    string
	}{
		{nil, "", ""},
		{[]string{"1"}, "1", "1"},
		{[]string{"1", "2"}, "1 e 2", "1 ou 2"},
		{[]string{"1", "2", "3"}, "1, 2 e 3", "1, 2 ou 3"},
	}
	for _, tt := range tests {
		if got := joinAnd(tt.items); got != tt.and {
			t.Errorf("joinAnd(%v) = %q", tt.items, got)
		}
		if got := joinOr(tt.items); got != tt.or {
			t.Errorf("joinOr(%v) = %q", tt.items, got)
		}
	}
}

func TestRenderList(t *testing.T) {
	got := renderList([]tasks.Task{
		{Index: 1, Title: "A", Status: tasks.StatusPending},
		{Index: 3, Title: "C", Status: tasks.StatusBlocked, BlockedReason: "sem acesso"},
		{Index: 4, Title: "D", Status: tasks.StatusBlocked},
	})
	want := "⬜ 1. A\n⛔ 3. C (sem acesso)\n⛔ 4. D"
	if got != want {
		t.Errorf("renderList = %q, want %q", got, want)
	}
}

func TestSlotSubcategory(t *testing.T) {
	three := 3
	tests := []struct {
		d    dialogue.Decision
		want string
	}{
		{dialogue.Decision{Kind: dialogue.KindPrompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentDoneTask, Missing: dialogue.MissingTaskIndex}}, "task_index_done"},
		{dialogue.Decision{Kind: dialogue.KindPrompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentInProgressTask, Missing: dialogue.MissingTaskIndex}}, "task_index_in_progress"},
		{dialogue.Decision{Kind: dialogue.KindPrompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentBlockedTask, Missing: dialogue.MissingTaskIndex}}, "task_index_blocked"},
		{dialogue.Decision{Kind: dialogue.KindPrompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentShowTask, Missing: dialogue.MissingTaskIndex}}, "task_index_show"},
		{dialogue.Decision{Kind: dialogue.KindPrompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentBlockedTask, Missing: dialogue.MissingReason, Known: nlp.Entities{TaskIndex: &three}}}, "reason"},
		{dialogue.Decision{Kind: dialogue.KindPrompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentCreateTask, Missing: dialogue.MissingTitle}}, "title"},
		{dialogue.Decision{Kind: dialogue.KindReprompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentShowTask, Missing: dialogue.MissingTaskIndex}}, "reprompt_task_index"},
		{dialogue.Decision{Kind: dialogue.KindReprompt, Slot: &dialogue.SlotRequest{Intent: nlp.IntentBlockedTask, Missing: dialogue.MissingReason}}, "reprompt_reason"},
	}
	for _, tt := range tests {
		if got := slotSubcategory(tt.d); got != tt.want {
			t.Errorf("slotSubcategory(%s %s %s) = %s, want %s", tt.d.Kind, tt.d.Slot.Intent, tt.d.Slot.Missing, got, tt.want)
		}
	}
}
