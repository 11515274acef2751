// Package annotate stamps the three Ukrainian price lines onto product
// images, centered inside an opaque white band along the bottom edge.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
)

// BandHeight is the height in pixels of the white price band. Images
// shorter than this end up fully covered.
const BandHeight = 350

const (
	fontSize    = 65 // at 72 DPI one point is one pixel
	lineSpacing = 30
	bandPadding = 30
)

const (
	labelCrib     = "Ліжечко"
	labelPendulum = "З маятником"
	labelDrawer   = "З шухлядою"
	currency      = "грн"
)

// Annotator renders price bands with a single shared font face. The face
// is guarded by a mutex: opentype faces keep internal rasterizer state and
// are unsafe for concurrent drawing.
type Annotator struct {
	mu      sync.Mutex
	face    font.Face
	builtin bool
}

// New returns an Annotator drawing with the decorative font at fontPath.
// When the font is missing or malformed the built-in bitmap face is used
// instead, so rendering never becomes unavailable over a cosmetic asset.
func New(fontPath string) *Annotator {
	face, err := loadFace(fontPath)
	if err != nil {
		slog.Warn("decorative font unavailable, falling back to built-in face", "path", fontPath, "error", err)
		return &Annotator{face: basicfont.Face7x13, builtin: true}
	}
	slog.Debug("decorative font loaded", "path", fontPath, "size_points", fontSize)
	return &Annotator{face: face}
}

func loadFace(path string) (font.Face, error) {
	if path == "" {
		return nil, fmt.Errorf("no font path configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font file %s: %w", path, err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build font face: %w", err)
	}
	return face, nil
}

// Annotate returns a copy of src with the white band painted over its
// bottom BandHeight pixels and the row's three price lines centered inside
// it. The source image is never modified. Output depends only on the
// source pixels and the row values, so repeated calls are byte-stable
// after encoding.
func (a *Annotator) Annotate(src image.Image, row pricebook.Row) *image.NRGBA {
	img := imaging.Clone(src)
	bounds := img.Bounds()
	bandTop := bounds.Max.Y - BandHeight

	// draw.Draw clips to the image, so short images just get covered.
	band := image.Rect(bounds.Min.X, bandTop, bounds.Max.X, bounds.Max.Y)
	draw.Draw(img, band, image.NewUniform(color.White), image.Point{}, draw.Src)

	lines := [3]string{
		fmt.Sprintf("%s: %s %s", labelCrib, row.Crib, currency),
		fmt.Sprintf("%s: %s %s", labelPendulum, row.Pendulum, currency),
		fmt.Sprintf("%s: %s %s", labelDrawer, row.Drawer, currency),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, line := range lines {
		top := bandTop + bandPadding + i*(fontSize+lineSpacing)
		a.drawCentered(img, line, top)
	}
	return img
}

// drawCentered draws text in black with its top edge at top, horizontally
// centered. The caller holds the face mutex.
func (a *Annotator) drawCentered(dst *image.NRGBA, text string, top int) {
	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: a.face,
	}
	width := drawer.MeasureString(text).Ceil()
	bounds := dst.Bounds()
	x := bounds.Min.X + (bounds.Dx()-width)/2
	// The drawer anchors text at the baseline, not the top edge.
	drawer.Dot = fixed.P(x, top+a.face.Metrics().Ascent.Ceil())
	drawer.DrawString(text)
}

// EncodePNG serializes img with the standard PNG encoder. All rendered
// output leaves the service PNG-encoded regardless of the source format.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
