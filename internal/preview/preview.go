// Package preview draws images on a 24-bit colour terminal using half-block cells.
package preview

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/term"
)

// DefaultWidth is the number of columns used when the output is not a terminal.
const DefaultWidth = 80

// upperHalf is drawn with the foreground set to the upper pixel and the background
// to the lower one, so each text cell shows two image rows.
const upperHalf = "▀"

// TerminalWidth returns the column count of f if it is a terminal.
func TerminalWidth(f *os.File) (int, bool) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}

	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 0, false
	}

	return w, true
}

// Size returns the pixel size img is scaled to for a preview cols columns wide.
// Height is rounded up to an even number of pixels. Images narrower than cols are not enlarged.
func Size(b image.Rectangle, cols int) (w, h int) {
	if b.Empty() || cols <= 0 {
		return 0, 0
	}

	w = min(b.Dx(), cols)
	h = max(1, b.Dy()*w/b.Dx())
	h += h & 1

	return w, h
}

// Render scales img to at most cols columns and writes it to out as ANSI escape
// sequences, one text line per pair of pixel rows.
func Render(out io.Writer, img image.Image, cols int) error {
	w, h := Size(img.Bounds(), cols)
	if w == 0 {
		return errors.New("preview: empty image")
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	bw := bufio.NewWriter(out)
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x++ {
			top := dst.RGBAAt(x, y)
			bot := dst.RGBAAt(x, y+1)
			fmt.Fprintf(bw, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm%s",
				top.R, top.G, top.B, bot.R, bot.G, bot.B, upperHalf)
		}

		if _, err := bw.WriteString("\x1b[0m\n"); err != nil {
			return errors.Wrap(err, "preview: write")
		}
	}

	return errors.Wrap(bw.Flush(), "preview: flush")
}
