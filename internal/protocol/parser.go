package protocol

import (
	"regexp"
	"strconv"
)

// Fields maps field names to captured text. Group 0, the whole match, is
// conventionally named "string".
type Fields map[string]string

// Get returns the value for key and whether it was captured.
func (f Fields) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// Descriptor declares how one command's response is decoded.
type Descriptor[T any] struct {
	Command string
	// Patterns are tried in order; the first match consumes a line.
	Patterns []*regexp.Regexp
	// FieldNames name capture groups by position. Empty means the keys are
	// the group indexes.
	FieldNames []string
	// IndexField, when set, keys Parsed.Index by that field's value.
	IndexField string
	// Translate builds a record from the captured fields. When nil the
	// Fields value itself is the record, which requires T to be Fields.
	Translate func(Fields) T
}

// Parsed holds decoded records in output order plus an optional index.
// On index collisions the later record wins.
type Parsed[T any] struct {
	Items []T
	Index map[string]T
}

// Match consumes every buffered line that one of patterns matches and
// returns the captured fields in output order. Lines that match nothing
// stay in buf.
func Match(buf *Buffer, patterns []*regexp.Regexp, names []string) []Fields {
	var out []Fields
	buf.consume(func(l Line) bool {
		for _, re := range patterns {
			idx := re.FindStringSubmatchIndex(l.Text)
			if idx == nil {
				continue
			}
			out = append(out, mapGroups(l.Text, idx, names))
			return true
		}
		return false
	})
	return out
}

func mapGroups(text string, idx []int, names []string) Fields {
	groups := len(idx) / 2
	f := make(Fields, groups)
	for i := 0; i < groups; i++ {
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		key := strconv.Itoa(i)
		if len(names) > 0 {
			if i >= len(names) {
				break
			}
			key = names[i]
		}
		f[key] = text[start:end]
	}
	return f
}

// Parse matches buf against d and translates the results.
func Parse[T any](buf *Buffer, d Descriptor[T]) Parsed[T] {
	matches := Match(buf, d.Patterns, d.FieldNames)
	p := Parsed[T]{Items: make([]T, 0, len(matches))}
	if d.IndexField != "" {
		p.Index = make(map[string]T, len(matches))
	}
	for _, f := range matches {
		var item T
		if d.Translate != nil {
			item = d.Translate(f)
		} else if v, ok := any(f).(T); ok {
			item = v
		}
		p.Items = append(p.Items, item)
		if p.Index != nil {
			if key, ok := f[d.IndexField]; ok {
				p.Index[key] = item
			}
		}
	}
	return p
}
