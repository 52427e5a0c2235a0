package types

// KeyKind classifies a keyboard event.
type KeyKind int

const (
	KeyChar KeyKind = iota
	KeyBackspace
	KeyDelete
	KeySpace
	KeySubmit
	KeyShiftDown
	KeyShiftUp
)

// KeyEvent is one abstract key press. Char is set only for KeyChar.
type KeyEvent struct {
	Kind KeyKind
	Char rune
}

// Char returns a printable key event.
func Char(r rune) KeyEvent { return KeyEvent{Kind: KeyChar, Char: r} }

// Key returns a non-printable key event.
func Key(k KeyKind) KeyEvent { return KeyEvent{Kind: k} }

// Keys expands text into printable and space events.
func Keys(text string) []KeyEvent {
	out := make([]KeyEvent, 0, len(text))
	for _, r := range text {
		if r == ' ' {
			out = append(out, Key(KeySpace))
			continue
		}
		out = append(out, Char(r))
	}
	return out
}
