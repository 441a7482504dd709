package classify

import (
	"reflect"
	"testing"

	"github.com/adverant/nexus/formextract-worker/internal/model"
)

func point(env, rng, pos, valueType string, alias ...string) model.ExtractionPoint {
	return model.ExtractionPoint{
		DocumentField:            "field",
		Page:                     1,
		ValueEnvironment:         env,
		TextStringPatternRange:   rng,
		KeyValueRelativePosition: pos,
		ValueType:                valueType,
		Alias:                    alias,
	}
}

func TestClassify(t *testing.T) {
	lmPattern := point("text", "line", "", "string")
	lmPattern.SignSealID = LMPatternSignSealID

	tests := []struct {
		name      string
		point     model.ExtractionPoint
		multiPage bool
		want      []Group
	}{
		{"lm pattern", lmPattern, true, []Group{MultipageTextStringLMPattern}},
		{"text line", point("text", "line", "", "string", "name"), true, []Group{MultipageTextLineString}},
		{"texts line", point("texts", "line", "", "string"), true, []Group{MultipageTextLinesString}},
		{"text line nearby", point("text", "line", "", "string", "name@"), true, []Group{MultipageTextLineStringNB}},
		{"text context", point("text", "context", "", "string"), true, []Group{MultipageTextContextString}},
		{"text img", point("text", "", "middle", "img"), true, []Group{MultipageTextImg}},
		{"texts img", point("texts", "", "up", "img"), true, []Group{MultipageTextImgs}},
		{"text img nearby", point("text", "", "@middle", "img", "a@b"), true, []Group{MultipageTextImgNB}},
		{"right table", point("table", "", "right", "string", "k"), true, []Group{MultipageRightTableString}},
		{"right all table", point("table", "", "right_all", "string"), true, []Group{MultipageRightTableAllString}},
		{"around img", point("text", "", "around", "img"), true, []Group{AroundTextImg}},
		{"down table", point("table", "", "down", "string"), true, []Group{MultipageDownTableString}},
		{"down first cell", point("table", "", "down_first", "string", "@cell1"), true, []Group{MultipageDownTableStringCell}},
		{"down first cell nearby", point("table", "", "down_first", "string", "name@x"), true, []Group{MultipageDownTableStringCellNB}},
		{"down cross cell also plain down", point("table", "", "down", "string", "&x"), true,
			[]Group{MultipageDownTableString, MultipageDownTableStringCrossCell}},
		{"down cross cell first", point("table", "", "down_first", "string", "&x"), true, []Group{MultipageDownTableStringCrossCell}},
		{"down nearby text", point("table", "", "down_first", "string", "name_text@"), true, []Group{MultipageDownTableStringCellNBText}},
		{"table img", point("table", "", "left", "img"), true, []Group{MultipageUpDownLeftRightTableImg}},
		{"right nearby single page", point("table", "", "right", "string", "key@"), false, []Group{MultipageRightNBTableString}},
		{"right nearby multi page", point("table", "", "right", "string", "key@"), true, []Group{MultipageRightNBTableString}},
		{"right value", point("table", "", "right", "string", "k_value@"), false, []Group{MultipageRightNBTableStringValue}},
		{"right value multi page", point("table", "", "right", "string", "k_value@"), true, []Group{MultipageRightNBTableStringValue}},
		{"single page text line", point("text", "line", "", "string", "name"), false, []Group{}},
		{"right without alias single page", point("table", "", "right", "string"), false, []Group{}},
		{"unknown environment", point("form", "line", "right", "string"), true, []Group{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.point, tt.multiPage)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyCellExcludesNonCellGroups(t *testing.T) {
	p := point("table", "", "down_first", "string", "@cell1")
	groups := Classify(p, true)

	if !In(p, true, MultipageDownTableStringCell) {
		t.Fatal("expected cell group")
	}
	for _, g := range groups {
		if g == MultipageDownTableStringCellNB {
			t.Errorf("cell point must not be in %s", g)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	p := point("table", "", "down", "string", "&x")
	first := Classify(p, true)
	for i := 0; i < 10; i++ {
		if got := Classify(p, true); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v != %v", i, got, first)
		}
	}
}

func TestDivideIntoGroups(t *testing.T) {
	cross := point("table", "", "down", "string", "&x")
	cross.DocumentField = "cross"
	down := point("table", "", "down", "string")
	down.DocumentField = "down"
	none := point("text", "line", "", "string")
	none.DocumentField = "none"

	batches := DivideIntoGroups([]model.ExtractionPoint{cross, none, down}, true)

	gotDown := fields(batches[MultipageDownTableString])
	if !reflect.DeepEqual(gotDown, []string{"cross", "down"}) {
		t.Errorf("down group = %v", gotDown)
	}
	gotCross := fields(batches[MultipageDownTableStringCrossCell])
	if !reflect.DeepEqual(gotCross, []string{"cross"}) {
		t.Errorf("cross group = %v", gotCross)
	}
	gotLine := fields(batches[MultipageTextLineString])
	if !reflect.DeepEqual(gotLine, []string{"none"}) {
		t.Errorf("line group = %v", gotLine)
	}
	if len(batches) != 3 {
		t.Errorf("expected 3 groups, got %d", len(batches))
	}
}

func TestAllGroups(t *testing.T) {
	groups := AllGroups()
	if len(groups) != 19 {
		t.Fatalf("expected 19 groups, got %d", len(groups))
	}
	if groups[0] != MultipageTextStringLMPattern || groups[18] != MultipageRightNBTableStringValue {
		t.Errorf("unexpected order: %v", groups)
	}

	seen := make(map[Group]bool)
	for _, g := range groups {
		if seen[g] {
			t.Errorf("duplicate group %s", g)
		}
		seen[g] = true
		if !g.Valid() {
			t.Errorf("%s should be valid", g)
		}
	}
	if Group("unknown").Valid() {
		t.Error("unknown group reported valid")
	}
}

func fields(points []model.ExtractionPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.DocumentField)
	}
	return out
}
