package types

// Align controls horizontal placement of a display line. Centered is the
// default.
type Align int

const (
	AlignCenter Align = iota
	AlignLeft
)

// Line is one row of the character display.
type Line struct {
	Text  string `json:"text"`
	Align Align  `json:"align,omitempty"`
}

// Frame is the full four-row display content for one tick. Rows are
// 1-indexed on the hardware; Frame[0] is row 1.
type Frame [4]Line

// Row sets row n (1-4) to centered text and returns the frame.
func (f Frame) Row(n int, text string) Frame {
	f[n-1] = Line{Text: text}
	return f
}

// RowLeft sets row n (1-4) to left-aligned text and returns the frame.
func (f Frame) RowLeft(n int, text string) Frame {
	f[n-1] = Line{Text: text, Align: AlignLeft}
	return f
}

// Color is an RGB indicator setting, each channel 0-100 percent duty.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

var (
	ColorOff    = Color{}
	ColorBlue   = Color{B: 100}
	ColorGreen  = Color{G: 100}
	ColorRed    = Color{R: 100}
	ColorDimRed = Color{R: 50}
	ColorPurple = Color{R: 100, B: 100}
)
