package geometry

import (
	"encoding/json"
	"testing"
)

func TestAbsoluteBox(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		ratio *RatioBox
		want  Box
	}{
		{
			name:  "scales rows by height and cols by width",
			shape: Shape{Width: 2000, Height: 1000},
			ratio: NewRatioBox(0.1, 0.2, 0.9, 0.8),
			want:  Box{TopLeft: Point{Row: 100, Col: 400}, BottomRight: Point{Row: 900, Col: 1600}},
		},
		{
			name:  "nil ratio keeps a one pixel border",
			shape: Shape{Width: 200, Height: 100},
			ratio: nil,
			want:  Box{TopLeft: Point{Row: 1, Col: 1}, BottomRight: Point{Row: 99, Col: 199}},
		},
		{
			name:  "half rounds up",
			shape: Shape{Width: 10, Height: 100},
			ratio: NewRatioBox(0.125, 0.25, 0.875, 0.75),
			want:  Box{TopLeft: Point{Row: 13, Col: 3}, BottomRight: Point{Row: 88, Col: 8}},
		},
		{
			name:  "below half rounds down",
			shape: Shape{Width: 100, Height: 100},
			ratio: NewRatioBox(0.104, 0.0, 0.996, 1.0),
			want:  Box{TopLeft: Point{Row: 10, Col: 0}, BottomRight: Point{Row: 100, Col: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AbsoluteBox(tt.shape, tt.ratio)
			if got != tt.want {
				t.Errorf("AbsoluteBox() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// 0.145 * 100 is 14.499999999999998 in float64; decimal arithmetic keeps it at 14.5
func TestAbsoluteBoxExactDecimal(t *testing.T) {
	var ratio RatioBox
	if err := json.Unmarshal([]byte(`[[0.145, 0.145], ["0.5", "0.5"]]`), &ratio); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := AbsoluteBox(Shape{Width: 100, Height: 100}, &ratio)
	if got.TopLeft.Row != 15 || got.TopLeft.Col != 15 {
		t.Errorf("expected top-left (15,15), got (%d,%d)", got.TopLeft.Row, got.TopLeft.Col)
	}
	if got.BottomRight.Row != 50 || got.BottomRight.Col != 50 {
		t.Errorf("expected bottom-right (50,50), got (%d,%d)", got.BottomRight.Row, got.BottomRight.Col)
	}
}

func TestRatioBoxJSON(t *testing.T) {
	var ratio RatioBox
	if err := json.Unmarshal([]byte(`[[0.1,0.2],[0.9,0.8]]`), &ratio); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	data, err := json.Marshal(ratio)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[["0.1","0.2"],["0.9","0.8"]]` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var back RatioBox
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal quoted: %v", err)
	}
	if !back.TopLeft.Row.Equal(ratio.TopLeft.Row) || !back.BottomRight.Col.Equal(ratio.BottomRight.Col) {
		t.Errorf("round trip changed values: %+v", back)
	}
}

func TestRatioBoxJSONRejectsMalformed(t *testing.T) {
	inputs := []string{
		`[[0.1,0.2]]`,
		`[[0.1],[0.9,0.8]]`,
		`{"top": 1}`,
	}
	for _, in := range inputs {
		var ratio RatioBox
		if err := json.Unmarshal([]byte(in), &ratio); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestBoxString(t *testing.T) {
	box := Box{TopLeft: Point{Row: 100, Col: 400}, BottomRight: Point{Row: 900, Col: 1600}}
	if got := box.String(); got != "400,100,1200,800" {
		t.Errorf("String() = %q", got)
	}
}
