// File: internal/executor/placeholder.go
package executor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder dimensions match a small but readable diagnostic frame; the
// model only needs to see that capture failed and why.
const (
	placeholderWidth  = 800
	placeholderHeight = 400
	placeholderMargin = 24
)

var (
	placeholderBackground = color.RGBA{R: 0x22, G: 0x25, B: 0x2a, A: 0xff}
	placeholderForeground = color.RGBA{R: 0xe6, G: 0xe6, B: 0xe6, A: 0xff}
	placeholderAccent     = color.RGBA{R: 0xc0, G: 0x5b, B: 0x4d, A: 0xff}
)

// placeholderImage synthesizes a diagnostic PNG describing a capture
// failure. It never fails: the encoding of a fixed-size RGBA image into a
// buffer cannot error in practice, and the caller depends on always getting
// a non-nil artifact.
func placeholderImage(message string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(placeholderBackground), image.Point{}, draw.Src)

	// Accent bar along the top edge marks this as a synthetic frame.
	draw.Draw(img, image.Rect(0, 0, placeholderWidth, 6), image.NewUniform(placeholderAccent), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderForeground),
		Face: basicfont.Face7x13,
	}

	lines := append([]string{"SCREENSHOT UNAVAILABLE", ""}, wrapText(message, 100)...)
	y := placeholderMargin + 13
	for _, line := range lines {
		drawer.Dot = fixed.P(placeholderMargin, y)
		drawer.DrawString(line)
		y += 18
		if y > placeholderHeight-placeholderMargin {
			break
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// wrapText splits a message into lines of at most width characters, breaking
// on spaces where possible.
func wrapText(s string, width int) []string {
	if len(s) <= width {
		return []string{s}
	}
	var lines []string
	for len(s) > width {
		cut := width
		for i := width; i > 0; i-- {
			if s[i] == ' ' {
				cut = i
				break
			}
		}
		lines = append(lines, s[:cut])
		s = s[cut:]
		for len(s) > 0 && s[0] == ' ' {
			s = s[1:]
		}
	}
	if len(s) > 0 {
		lines = append(lines, s)
	}
	return lines
}
