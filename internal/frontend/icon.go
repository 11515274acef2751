package frontend

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// appleTouchIconSize is the pixel size iOS requests for home-screen icons.
const appleTouchIconSize = 180

var (
	touchIconOnce sync.Once
	touchIconPNG  []byte
	touchIconErr  error
)

// appleTouchIcon rasterizes the embedded SVG icon on first use and serves
// the cached PNG afterwards.
func appleTouchIcon() ([]byte, error) {
	touchIconOnce.Do(func() {
		data, err := assetsFS.ReadFile("views/icon.svg")
		if err != nil {
			touchIconErr = fmt.Errorf("failed to read embedded icon: %w", err)
			return
		}
		touchIconPNG, touchIconErr = renderSVGToPNG(data, appleTouchIconSize, appleTouchIconSize)
	})
	return touchIconPNG, touchIconErr
}

// renderSVGToPNG rasterizes an SVG byte slice onto a white canvas of the
// given dimensions.
func renderSVGToPNG(svgData []byte, width, height int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode rendered icon: %w", err)
	}
	return buf.Bytes(), nil
}
