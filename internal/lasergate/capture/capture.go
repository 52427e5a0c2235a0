// Package capture turns a stream of key events into named text fields for
// on-device enrollment.
package capture

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// ErrValidation is returned by Handle when a submit is rejected. The
// session stays on the same field.
var ErrValidation = errors.New("invalid input")

// Field describes one value to collect.
type Field struct {
	Name     string
	Prompt   string
	Numeric  bool // only digits are accepted
	MaxLen   int  // 0 = unlimited
	ExactLen int  // enforced on submit; 0 = any
	Required bool // enforced on submit
}

// DefaultFields returns the enrollment form: a required name, plus a
// numeric secondary id of digits length when digits > 0.
func DefaultFields(digits int) []Field {
	fields := []Field{{
		Name:     FieldName,
		Prompt:   "Enter your name:",
		Required: true,
	}}
	if digits > 0 {
		fields = append(fields, Field{
			Name:     FieldSecondaryID,
			Prompt:   fmt.Sprintf("Enter %d digit ID:", digits),
			Numeric:  true,
			MaxLen:   digits,
			ExactLen: digits,
			Required: true,
		})
	}
	return fields
}

const (
	FieldName        = "name"
	FieldSecondaryID = "secondary_id"
)

// Session is one pass through an ordered list of fields. It has no timeout
// of its own and is not safe for concurrent use.
type Session struct {
	fields    []Field
	buffers   [][]rune
	active    int
	submitted bool
}

func NewSession(fields []Field) *Session {
	return &Session{
		fields:  fields,
		buffers: make([][]rune, len(fields)),
	}
}

// Handle applies one key event. Only a rejected submit returns an error.
// Events after the final submit are ignored.
func (s *Session) Handle(ev types.KeyEvent) error {
	if s.submitted || len(s.fields) == 0 {
		return nil
	}
	f := s.fields[s.active]
	buf := s.buffers[s.active]

	switch ev.Kind {
	case types.KeyChar:
		s.buffers[s.active] = appendRune(f, buf, ev.Char)
	case types.KeySpace:
		s.buffers[s.active] = appendRune(f, buf, ' ')
	case types.KeyBackspace:
		if len(buf) > 0 {
			s.buffers[s.active] = buf[:len(buf)-1]
		}
	case types.KeyDelete:
		s.buffers[s.active] = buf[:0]
	case types.KeySubmit:
		return s.submit()
	}
	return nil
}

func appendRune(f Field, buf []rune, r rune) []rune {
	if f.Numeric && !unicode.IsDigit(r) {
		return buf
	}
	if f.MaxLen > 0 && len(buf) >= f.MaxLen {
		return buf
	}
	return append(buf, r)
}

func (s *Session) submit() error {
	f := s.fields[s.active]
	v := strings.TrimSpace(string(s.buffers[s.active]))

	if f.Required && v == "" {
		return fmt.Errorf("%s is required: %w", f.Name, ErrValidation)
	}
	if f.ExactLen > 0 && utf8.RuneCountInString(v) != f.ExactLen {
		return fmt.Errorf("%s must be %d characters: %w", f.Name, f.ExactLen, ErrValidation)
	}

	if s.active == len(s.fields)-1 {
		s.submitted = true
		return nil
	}
	s.active++
	return nil
}

// Active returns the field currently being edited.
func (s *Session) Active() Field {
	if len(s.fields) == 0 {
		return Field{}
	}
	return s.fields[s.active]
}

// ActiveIndex returns the index of the field being edited.
func (s *Session) ActiveIndex() int { return s.active }

// Buffer returns the raw, untrimmed text of the active field.
func (s *Session) Buffer() string {
	if len(s.fields) == 0 {
		return ""
	}
	return string(s.buffers[s.active])
}

// Value returns the trimmed value of the named field.
func (s *Session) Value(name string) string {
	for i, f := range s.fields {
		if f.Name == name {
			return strings.TrimSpace(string(s.buffers[i]))
		}
	}
	return ""
}

// Values returns every field's trimmed value keyed by name.
func (s *Session) Values() map[string]string {
	out := make(map[string]string, len(s.fields))
	for i, f := range s.fields {
		out[f.Name] = strings.TrimSpace(string(s.buffers[i]))
	}
	return out
}

func (s *Session) Submitted() bool { return s.submitted }
