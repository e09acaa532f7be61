package commands

import (
	"strconv"
	"strings"

	"github.com/bdobrica/Kanri/internal/kanri/tasks"
)

// renderList formats tasks one per line with their status icon and number.
func renderList(ts []tasks.Task) string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Status.Icon())
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(t.Index))
		b.WriteString(". ")
		b.WriteString(t.Title)
		if t.Status == tasks.StatusBlocked && t.BlockedReason != "" {
			b.WriteString(" (")
			b.WriteString(t.BlockedReason)
			b.WriteByte(')')
		}
	}
	return b.String()
}

func findTask(ts []tasks.Task, index int) (tasks.Task, bool) {
	for _, t := range ts {
		if t.Index == index {
			return t, true
		}
	}
	return tasks.Task{}, false
}

// progressBucket names the progress reply pool for p.
func progressBucket(p tasks.Progress) string {
	pct := p.Percent()
	switch {
	case p.Total == 0:
		return "empty"
	case p.Done == 0:
		return "zero"
	case pct < 50:
		return "low"
	case pct < 80:
		return "mid"
	case p.Done < p.Total:
		return "high"
	default:
		return "complete"
	}
}

func intStrings(xs []int) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = strconv.Itoa(x)
	}
	return out
}

func joinInts(xs []int, sep string) string {
	return strings.Join(intStrings(xs), sep)
}

// joinAnd renders "1", "1 e 2", "1, 2 e 3".
func joinAnd(items []string) string {
	return joinLast(items, " e ")
}

// joinOr renders "a", "a ou b", "a, b ou c".
func joinOr(items []string) string {
	return joinLast(items, " ou ")
}

func joinLast(items []string, last string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + last + items[len(items)-1]
}
