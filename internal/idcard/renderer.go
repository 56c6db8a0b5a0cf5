// Package idcard renders student ID cards. Callers only rely on the
// Renderer contract: a student card in, encoded PNG bytes out.
package idcard

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // photo decoding
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrInvalidPhoto is returned when the photo bytes cannot be decoded.
var ErrInvalidPhoto = errors.New("invalid photo")

// Renderer turns a student record into image bytes.
type Renderer interface {
	Render(card model.StudentCard) ([]byte, error)
}

// Card geometry in pixels (CR80 ratio at low resolution).
const (
	cardWidth   = 640
	cardHeight  = 404
	photoX      = 32
	photoY      = 96
	photoWidth  = 180
	photoHeight = 220
	textX       = 240
	lineHeight  = 28
)

var (
	headerColor = color.RGBA{R: 0x1f, G: 0x4e, B: 0x8c, A: 0xff}
	textColor   = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	placeholder = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
)

// TemplateRenderer draws text and the photo over a background image.
type TemplateRenderer struct {
	background image.Image
	title      string
}

// NewTemplateRenderer loads the background PNG at path. An empty path
// yields a plain generated card.
func NewTemplateRenderer(path, title string) (*TemplateRenderer, error) {
	r := &TemplateRenderer{title: title}
	if path == "" {
		return r, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id card template: %w", err)
	}
	defer f.Close()

	bg, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode id card template: %w", err)
	}
	r.background = bg
	return r, nil
}

// Render composes the card and encodes it as PNG.
func (r *TemplateRenderer) Render(card model.StudentCard) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))

	if r.background != nil {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), r.background, r.background.Bounds(), draw.Src, nil)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(canvas, image.Rect(0, 0, cardWidth, 64), image.NewUniform(headerColor), image.Point{}, draw.Src)
	}
	drawText(canvas, 32, 40, strings.ToUpper(r.title), color.White)

	photoRect := image.Rect(photoX, photoY, photoX+photoWidth, photoY+photoHeight)
	if len(card.Photo) > 0 {
		photo, _, err := image.Decode(bytes.NewReader(card.Photo))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
		}
		draw.CatmullRom.Scale(canvas, photoRect, photo, photo.Bounds(), draw.Over, nil)
	} else {
		draw.Draw(canvas, photoRect, image.NewUniform(placeholder), image.Point{}, draw.Src)
	}

	y := photoY + lineHeight
	for _, line := range [][2]string{
		{"Name", card.Name},
		{"Roll No", card.RollNumber},
		{"Course", card.Course},
		{"Batch", card.Batch},
		{"Email", card.Email},
	} {
		if line[1] == "" {
			continue
		}
		drawText(canvas, textX, y, line[0]+": "+line[1], textColor)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode id card: %w", err)
	}
	return buf.Bytes(), nil
}

func drawText(dst draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
