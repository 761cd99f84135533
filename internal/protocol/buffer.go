package protocol

import "sync"

// Line is one filtered response line with its arrival sequence number.
type Line struct {
	Seq  uint64
	Text string
}

// Buffer holds response lines until a parse consumes them.
type Buffer struct {
	mu    sync.Mutex
	lines []Line
	seq   uint64
}

// NewBuffer returns a buffer holding texts in order.
func NewBuffer(texts ...string) *Buffer {
	b := &Buffer{}
	b.Append(texts...)
	return b
}

// Append adds lines at the end of the buffer.
func (b *Buffer) Append(texts ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range texts {
		b.seq++
		b.lines = append(b.lines, Line{Seq: b.seq, Text: t})
	}
}

// Lines returns a snapshot of the buffered lines.
func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Line(nil), b.lines...)
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Unparsed returns the text of every line no parse has consumed.
func (b *Buffer) Unparsed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	for i, l := range b.lines {
		out[i] = l.Text
	}
	return out
}

// Reset drops every buffered line.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// consume calls take for each line in order and removes the lines for
// which it reports true.
func (b *Buffer) consume(take func(Line) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.lines[:0]
	for _, l := range b.lines {
		if !take(l) {
			kept = append(kept, l)
		}
	}
	clear(b.lines[len(kept):])
	b.lines = kept
}
