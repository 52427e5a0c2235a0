// Package lcd formats frames for a fixed-width character display.
package lcd

import (
	"strings"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Width is the column count of the stock 20x4 module.
const Width = 20

// FormatLine pads text to width. Centered text puts the odd space on the
// right. Text longer than width keeps its last width characters so the
// cursor end of a typed buffer stays visible.
func FormatLine(text string, align types.Align, width int) string {
	if width <= 0 {
		width = Width
	}
	r := []rune(text)
	if len(r) > width {
		r = r[len(r)-width:]
	}
	pad := width - len(r)
	if align == types.AlignLeft {
		return string(r) + strings.Repeat(" ", pad)
	}
	left := pad / 2
	return strings.Repeat(" ", left) + string(r) + strings.Repeat(" ", pad-left)
}

// FormatFrame renders all four rows.
func FormatFrame(f types.Frame, width int) [4]string {
	var out [4]string
	for i, l := range f {
		out[i] = FormatLine(l.Text, l.Align, width)
	}
	return out
}
