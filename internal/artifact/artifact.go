// Package artifact renders the passport card image that is uploaded to
// content-addressed storage before minting. Rendering is pure: the same
// fields always produce the same bytes.
package artifact

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"unicode"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ContentType is the MIME type of rendered images.
const ContentType = "image/png"

// FileName is the name the image is uploaded under.
const FileName = "passport.png"

// card geometry
const (
	width   = 480
	height  = 300
	border  = 4
	margin  = 24
	bandH   = 56
	emblemR = 42
)

// placeholders shown while the form is still empty
const (
	defaultName  = "John Doe"
	defaultPlace = "United States"
)

var (
	background = color.RGBA{0xe9, 0xd5, 0xff, 0xff}
	band       = color.RGBA{0xbf, 0xdb, 0xfe, 0xff}
	ink        = color.RGBA{0x1f, 0x12, 0x3d, 0xff}
	muted      = color.RGBA{0x6b, 0x5b, 0x8a, 0xff}
	accent     = color.RGBA{0x6b, 0x21, 0xa8, 0xff}
)

// Artifact is a rendered passport image plus its token metadata.
type Artifact struct {
	Name        string
	Description string
	ContentType string
	FileName    string
	Image       []byte
}

// Build renders the passport card for the given fields. Empty fields are a
// normal transient state while the user is typing and render placeholders.
func Build(fullName, placeOfBirth string) Artifact {
	return Artifact{
		Name:        fullName,
		Description: Description(fullName),
		ContentType: ContentType,
		FileName:    FileName,
		Image:       render(fullName, placeOfBirth),
	}
}

// Description returns the token description for a holder.
func Description(fullName string) string {
	return fullName + "'s Passport"
}

func render(fullName, placeOfBirth string) []byte {
	name := fullName
	if strings.TrimSpace(name) == "" {
		name = defaultName
	}
	place := placeOfBirth
	if strings.TrimSpace(place) == "" {
		place = defaultPlace
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, img.Bounds(), accent)
	fill(img, image.Rect(border, border, width-border, height-border), background)
	fill(img, image.Rect(border, border, width-border, bandH), band)

	drawText(img, "DIGITAL PASSPORT", margin, 40, 2, ink)

	drawText(img, "NAME", margin, 96, 1, muted)
	drawText(img, clip(fold(name), 20), margin, 124, 2, ink)

	drawText(img, "PLACE OF BIRTH", margin, 166, 1, muted)
	drawText(img, clip(fold(place), 20), margin, 194, 2, ink)

	drawText(img, "NON-TRANSFERABLE", margin, height-margin, 1, muted)

	drawEmblem(img, width-margin-emblemR, bandH+(height-bandH)/2)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		// encoding an in-memory RGBA into a bytes.Buffer cannot fail
		panic("artifact: encode png: " + err.Error())
	}
	return buf.Bytes()
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// drawText renders s with its baseline at (x, y), upscaled by an integer
// factor with nearest-neighbour sampling to keep the bitmap font crisp.
func drawText(dst draw.Image, s string, x, y, scale int, c color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	if w == 0 {
		return
	}
	h := face.Height
	ascent := face.Ascent

	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  tmp,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(s)

	top := y - ascent*scale
	target := image.Rect(x, top, x+w*scale, top+h*scale)
	xdraw.NearestNeighbor.Scale(dst, target, tmp, tmp.Bounds(), xdraw.Over, nil)
}

// drawEmblem paints a ringed seal centred on (cx, cy).
func drawEmblem(dst *image.RGBA, cx, cy int) {
	outer := emblemR * emblemR
	inner := (emblemR - 6) * (emblemR - 6)
	core := (emblemR - 14) * (emblemR - 14)

	for y := cy - emblemR; y <= cy+emblemR; y++ {
		for x := cx - emblemR; x <= cx+emblemR; x++ {
			dx, dy := x-cx, y-cy
			d := dx*dx + dy*dy
			switch {
			case d <= core:
				dst.SetRGBA(x, y, band)
			case d <= inner:
				dst.SetRGBA(x, y, background)
			case d <= outer:
				dst.SetRGBA(x, y, accent)
			}
		}
	}
}

// fold reduces s to printable ASCII so the bitmap font can draw it:
// diacritics are stripped and anything left outside ASCII becomes '?'.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

// clip truncates s to n characters, marking the cut with "...".
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
