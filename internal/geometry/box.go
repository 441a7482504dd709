/**
 * Geometry helpers for FormExtract Worker
 *
 * Converts relative ratio boxes from extraction point configuration into
 * absolute pixel coordinates for a concrete image size.
 */

package geometry

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/shopspring/decimal"
)

// Shape is the pixel size of an image
type Shape struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is an absolute pixel position in (row, col) order
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Box is an absolute pixel region given by its top-left and bottom-right corners
type Box struct {
	TopLeft     Point `json:"top_left"`
	BottomRight Point `json:"bottom_right"`
}

// Ratio is a position expressed as fractions of image height (Row) and width (Col).
// Values are exact decimals so that rounding matches the configuration text digit for digit.
type Ratio struct {
	Row decimal.Decimal
	Col decimal.Decimal
}

// RatioBox is a relative region. On the wire it is [[row, col], [row, col]].
type RatioBox struct {
	TopLeft     Ratio
	BottomRight Ratio
}

// NewRatioBox builds a RatioBox from float corners, mostly useful in tests and fixtures
func NewRatioBox(topRow, topCol, bottomRow, bottomCol float64) *RatioBox {
	return &RatioBox{
		TopLeft:     Ratio{Row: decimal.NewFromFloat(topRow), Col: decimal.NewFromFloat(topCol)},
		BottomRight: Ratio{Row: decimal.NewFromFloat(bottomRow), Col: decimal.NewFromFloat(bottomCol)},
	}
}

// AbsoluteBox scales ratio by shape, rounding half-up to whole pixels.
// A nil ratio selects the full image minus a one pixel border.
func AbsoluteBox(shape Shape, ratio *RatioBox) Box {
	if ratio == nil {
		return Box{
			TopLeft:     Point{Row: 1, Col: 1},
			BottomRight: Point{Row: shape.Height - 1, Col: shape.Width - 1},
		}
	}

	height := decimal.NewFromInt(int64(shape.Height))
	width := decimal.NewFromInt(int64(shape.Width))

	return Box{
		TopLeft: Point{
			Row: scale(ratio.TopLeft.Row, height),
			Col: scale(ratio.TopLeft.Col, width),
		},
		BottomRight: Point{
			Row: scale(ratio.BottomRight.Row, height),
			Col: scale(ratio.BottomRight.Col, width),
		},
	}
}

// scale multiplies exactly and rounds half away from zero, which is half-up for pixel sizes
func scale(ratio, size decimal.Decimal) int {
	return int(ratio.Mul(size).Round(0).IntPart())
}

// Rect converts the box into an image.Rectangle (x = col, y = row) for cropping
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.TopLeft.Col, b.TopLeft.Row, b.BottomRight.Col, b.BottomRight.Row)
}

// String renders the box as "x,y,w,h"
func (b Box) String() string {
	r := b.Rect()
	return fmt.Sprintf("%d,%d,%d,%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// MarshalJSON writes the ratio as [row, col]
func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]decimal.Decimal{r.Row, r.Col})
}

// UnmarshalJSON reads [row, col]; numbers and quoted numbers are both accepted
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var pair []decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid ratio: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("invalid ratio: expected [row, col], got %d values", len(pair))
	}
	r.Row, r.Col = pair[0], pair[1]
	return nil
}

// MarshalJSON writes the box as [[row, col], [row, col]]
func (b RatioBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Ratio{b.TopLeft, b.BottomRight})
}

// UnmarshalJSON reads [[row, col], [row, col]]
func (b *RatioBox) UnmarshalJSON(data []byte) error {
	var corners []Ratio
	if err := json.Unmarshal(data, &corners); err != nil {
		return fmt.Errorf("invalid ratio box: %w", err)
	}
	if len(corners) != 2 {
		return fmt.Errorf("invalid ratio box: expected 2 corners, got %d", len(corners))
	}
	b.TopLeft, b.BottomRight = corners[0], corners[1]
	return nil
}
