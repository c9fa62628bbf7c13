package engine

import "time"

// shortTermCapacity bounds the engine's conversational ring buffer.
const shortTermCapacity = 6

// shortTermEntry is one buffered conversational turn awaiting commit.
type shortTermEntry struct {
	Role string
	Text string
	Tags []string
	At   time.Time
}

// shortTermBuffer is a bounded ring of recent conversational turns. When
// full, appending drops the oldest entry. It is owned by the engine and only
// touched under the engine's writer lock, so it needs no locking of its own.
type shortTermBuffer struct {
	entries []shortTermEntry
}

func (b *shortTermBuffer) append(e shortTermEntry) {
	b.entries = append(b.entries, e)
	if len(b.entries) > shortTermCapacity {
		b.entries = b.entries[len(b.entries)-shortTermCapacity:]
	}
}

func (b *shortTermBuffer) len() int {
	return len(b.entries)
}

// snapshot returns the buffered entries without clearing them, so a failed
// commit leaves the buffer intact for retry.
func (b *shortTermBuffer) snapshot() []shortTermEntry {
	out := make([]shortTermEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *shortTermBuffer) clear() {
	b.entries = b.entries[:0]
}
