package coverpage

import "golang.org/x/text/encoding/charmap"

// helveticaWidths are the Helvetica glyph widths of WinAnsi codes 32 through 126, in
// thousandths of the font size.
var helveticaWidths = [...]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space to /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0-9
	278, 278, 584, 584, 584, 556, 1015, // : to @
	667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A-M
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N-Z
	278, 278, 278, 469, 556, 333, // [ to `
	556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a-m
	556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n-z
	334, 260, 334, 584, // { to ~
}

const (
	defaultGlyphWidth = 556
	// boldFactor widens regular metrics to bound Helvetica-Bold runs.
	boldFactor = 1.1
)

// winAnsi encodes s for the standard fonts. Characters outside Windows-1252 become '?'.
func winAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}

// textWidth measures encoded text set in Helvetica at size points.
func textWidth(encoded []byte, size float64, bold bool) float64 {
	total := 0
	for _, c := range encoded {
		w := defaultGlyphWidth
		if c >= 32 && int(c-32) < len(helveticaWidths) {
			w = helveticaWidths[c-32]
		}
		total += w
	}
	width := float64(total) / 1000 * size
	if bold {
		width *= boldFactor
	}
	return width
}

// fit shortens s with a trailing ellipsis until it fits maxWidth.
func fit(s string, size, maxWidth float64, bold bool) (string, bool) {
	if textWidth(winAnsi(s), size, bold) <= maxWidth {
		return s, false
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := string(runes[:n]) + "..."
		if textWidth(winAnsi(candidate), size, bold) <= maxWidth {
			return candidate, true
		}
	}
	return "...", true
}
