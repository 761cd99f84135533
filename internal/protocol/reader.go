package protocol

import (
	"bytes"
	"context"
	"strings"
	"time"
)

// Source is the read side of a transport.
type Source interface {
	ReadAvailable() []byte
	Wait(ctx context.Context) bool
}

// LineReader splits transport output into filtered lines. Lines end at
// '\n' or '\r', or as soon as the accumulated text equals the stop token,
// so a prompt without a trailing newline still terminates a read.
type LineReader struct {
	src     Source
	pending []byte
}

// NewLineReader returns a reader over src.
func NewLineReader(src Source) *LineReader {
	return &LineReader{src: src}
}

// ReadLine returns the next non-empty line. When the deadline passes it
// returns whatever partial text was read, or ErrTimeout if there was none.
// A closed stream behaves like an expired deadline.
func (r *LineReader) ReadLine(ctx context.Context, stop string, deadline time.Time) (string, error) {
	var cur []byte
	for {
		for len(r.pending) > 0 {
			c := r.pending[0]
			r.pending = r.pending[1:]

			if c == '\n' || c == '\r' {
				if line := StripANSI(string(cur)); line != "" {
					return line, nil
				}
				cur = cur[:0]
				continue
			}

			cur = append(cur, c)
			if s := string(cur); s == " " || s == "\x1b[0m" {
				cur = cur[:0]
				continue
			}
			if stop != "" && StripANSI(string(cur)) == stop {
				return stop, nil
			}
		}

		if !time.Now().Before(deadline) || !r.wait(ctx, deadline) {
			if line := StripANSI(string(cur)); line != "" {
				return line, nil
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return "", ErrTimeout
		}
		r.pending = append(r.pending, r.src.ReadAvailable()...)
	}
}

func (r *LineReader) wait(ctx context.Context, deadline time.Time) bool {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return r.src.Wait(ctx)
}

// ReadUntil collects lines until the stop token. It reports whether the
// token was seen; on deadline the partial collection is returned.
func (r *LineReader) ReadUntil(ctx context.Context, stop string, deadline time.Time) ([]string, bool) {
	var lines []string
	for {
		line, err := r.ReadLine(ctx, stop, deadline)
		if err != nil {
			return lines, false
		}
		if line == stop {
			return lines, true
		}
		lines = append(lines, line)
	}
}

// Drain returns the complete lines already queued without waiting.
// An unterminated tail stays pending so a line split across reads is
// joined by a later call; a tail that is only the stop token is dropped.
// Empty lines and bare stop tokens are skipped.
func (r *LineReader) Drain(stop string) []string {
	r.pending = append(r.pending, r.src.ReadAvailable()...)
	end := bytes.LastIndexAny(r.pending, "\n\r") + 1
	if tail := StripANSI(string(r.pending[end:])); tail == "" || tail == stop {
		end = len(r.pending)
	}
	lines := splitLines(r.pending[:end], stop)
	r.pending = append([]byte(nil), r.pending[end:]...)
	return lines
}

// Flush is Drain that also emits an unterminated tail.
func (r *LineReader) Flush(stop string) []string {
	r.pending = append(r.pending, r.src.ReadAvailable()...)
	lines := splitLines(r.pending, stop)
	r.pending = nil
	return lines
}

func splitLines(b []byte, stop string) []string {
	raw := strings.FieldsFunc(string(b), func(c rune) bool {
		return c == '\n' || c == '\r'
	})
	var lines []string
	for _, s := range raw {
		line := StripANSI(s)
		if line == "" || line == stop {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Discard drops queued and pending output.
func (r *LineReader) Discard() []byte {
	dropped := append(r.pending, r.src.ReadAvailable()...)
	r.pending = nil
	return dropped
}
