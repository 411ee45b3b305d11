package pipeline

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MaxHistory is the number of predictions a session keeps.
const MaxHistory = 10

// History is a FIFO log of recent predictions. Once full, each Append drops
// the oldest entry. It is not safe for concurrent use; Session serializes
// access.
type History struct {
	entries []HistoryEntry
}

// Append adds entry, dropping the oldest once MaxHistory is exceeded.
func (h *History) Append(entry HistoryEntry) {
	h.entries = append(h.entries, entry)
	if len(h.entries) > MaxHistory {
		h.entries = append(h.entries[:0:0], h.entries[len(h.entries)-MaxHistory:]...)
	}
}

// Entries returns a copy, oldest first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	return len(h.entries)
}

// Summary renders one line per entry, e.g.
// "Quest 1: Vegetation Fire (Confidence: 87.50%)".
func (h *History) Summary(tag language.Tag) []string {
	p := message.NewPrinter(tag)
	lines := make([]string, len(h.entries))
	for i, e := range h.entries {
		if !e.Scored {
			lines[i] = p.Sprintf("Quest %d: %s (Confidence: not reported)", i+1, e.Result)
			continue
		}
		lines[i] = p.Sprintf("Quest %d: %s (Confidence: %v)", i+1, e.Result,
			number.Percent(e.Confidence, number.Scale(2)))
	}
	return lines
}
