/**
 * Extraction point classification
 *
 * Maps the declarative attributes of an extraction point to the processing
 * groups (algorithm families) it belongs to. Every rule is evaluated; a point
 * may land in zero, one or several groups.
 */

package classify

import (
	"strings"

	"github.com/adverant/nexus/formextract-worker/internal/model"
)

// Group names a processing family
type Group string

const (
	MultipageTextStringLMPattern       Group = "multipage_text_string_lm_pattern"
	MultipageTextLineString            Group = "multipage_text_line_string"
	MultipageTextLinesString           Group = "multipage_text_lines_string"
	MultipageTextLineStringNB          Group = "multipage_text_line_string_nb"
	MultipageTextContextString         Group = "multipage_text_context_string"
	MultipageTextImg                   Group = "multipage_text_img"
	MultipageTextImgs                  Group = "multipage_text_imgs"
	MultipageTextImgNB                 Group = "multipage_text_img_nb"
	MultipageRightTableString          Group = "multipage_right_table_string"
	MultipageRightTableAllString       Group = "multipage_right_table_all_string"
	AroundTextImg                      Group = "around_text_img"
	MultipageDownTableString           Group = "multipage_down_table_string"
	MultipageDownTableStringCell       Group = "multipage_down_table_string_cell"
	MultipageDownTableStringCellNB     Group = "multipage_down_table_string_cell_nb"
	MultipageDownTableStringCrossCell  Group = "multipage_down_table_string_cross_cell"
	MultipageDownTableStringCellNBText Group = "multipage_down_table_string_cell_nb_text"
	MultipageUpDownLeftRightTableImg   Group = "multipage_up_down_left_right_table_img"
	MultipageRightNBTableString        Group = "multipage_right_nb_table_string"
	MultipageRightNBTableStringValue   Group = "multipage_right_nb_table_string_value"
)

// LMPatternSignSealID is the sign-seal id routed to the language-model pattern family
const LMPatternSignSealID = "19"

// predicates are the boolean facts the rule table is written against
type predicates struct {
	multi bool

	text, texts, table bool

	line, context bool

	position6, position4 bool

	right, rightAll, around bool

	down, down2 bool

	str, img bool

	nearby, cell, cross bool

	nearbyText, value, valueNot bool

	signSeal bool
}

type rule struct {
	group Group
	match func(p predicates) bool
}

// rules is evaluated in order; order only affects output ordering
var rules = []rule{
	{MultipageTextStringLMPattern, func(p predicates) bool {
		return p.text && p.signSeal && p.str && p.multi
	}},
	{MultipageTextLineString, func(p predicates) bool {
		return p.text && p.line && p.str && p.multi && !p.nearby && !p.signSeal
	}},
	{MultipageTextLinesString, func(p predicates) bool {
		return p.texts && p.line && p.str && p.multi && !p.nearby && !p.signSeal
	}},
	{MultipageTextLineStringNB, func(p predicates) bool {
		return p.text && p.line && p.str && p.multi && p.nearby
	}},
	{MultipageTextContextString, func(p predicates) bool {
		return p.text && p.context && p.str && p.multi && !p.nearby
	}},
	{MultipageTextImg, func(p predicates) bool {
		return p.text && p.position6 && p.img && p.multi && !p.nearby
	}},
	{MultipageTextImgs, func(p predicates) bool {
		return p.texts && p.position6 && p.img && p.multi && !p.nearby
	}},
	{MultipageTextImgNB, func(p predicates) bool {
		return p.text && p.position6 && p.img && p.multi && p.nearby
	}},
	{MultipageRightTableString, func(p predicates) bool {
		return p.table && p.right && p.str && p.multi && !p.nearby
	}},
	{MultipageRightTableAllString, func(p predicates) bool {
		return p.table && p.rightAll && p.str && p.multi && !p.nearby
	}},
	{AroundTextImg, func(p predicates) bool {
		return p.text && p.around && p.img && p.multi
	}},
	{MultipageDownTableString, func(p predicates) bool {
		return p.table && p.down && p.str && p.multi && !p.nearby
	}},
	{MultipageDownTableStringCell, func(p predicates) bool {
		return p.table && p.down2 && p.str && p.multi && p.nearby && p.cell
	}},
	{MultipageDownTableStringCellNB, func(p predicates) bool {
		return p.table && p.down2 && p.str && p.multi && p.nearby && !p.cell && !p.nearbyText
	}},
	{MultipageDownTableStringCrossCell, func(p predicates) bool {
		return p.table && p.down2 && p.str && p.multi && p.cross
	}},
	{MultipageDownTableStringCellNBText, func(p predicates) bool {
		return p.table && p.down2 && p.str && p.multi && p.nearbyText
	}},
	{MultipageUpDownLeftRightTableImg, func(p predicates) bool {
		return p.table && p.position4 && p.img && p.multi
	}},
	// single-page capable: no multi-page requirement
	{MultipageRightNBTableString, func(p predicates) bool {
		return p.table && p.right && p.str && p.valueNot && p.nearby
	}},
	{MultipageRightNBTableStringValue, func(p predicates) bool {
		return p.table && p.right && p.str && p.value
	}},
}

var (
	positions6 = []string{"up", "down", "left", "right", "middle", "@middle"}
	positions4 = []string{"up", "down", "left", "right"}
	downs      = []string{"down", "down_first"}
)

func derive(point model.ExtractionPoint, multiPage bool) predicates {
	env := point.ValueEnvironment
	rng := point.TextStringPatternRange
	pos := point.KeyValueRelativePosition

	p := predicates{
		multi:     multiPage,
		text:      env == model.EnvText,
		texts:     env == model.EnvTexts,
		table:     env == model.EnvTable,
		line:      rng == "line",
		context:   rng == "context",
		position6: contains(positions6, pos),
		position4: contains(positions4, pos),
		right:     pos == "right",
		rightAll:  pos == "right_all",
		around:    pos == "around",
		down:      pos == "down",
		down2:     contains(downs, pos),
		str:       point.ValueType == model.ValueString,
		img:       point.ValueType == model.ValueImg,
		signSeal:  point.SignSealID == LMPatternSignSealID,
	}

	if alias, ok := point.FirstAlias(); ok {
		p.nearby = strings.Contains(alias, "@")
		p.cell = strings.HasPrefix(alias, "@")
		p.cross = strings.HasPrefix(alias, "&")
		p.nearbyText = strings.Contains(alias, "_text@")
		p.value = strings.Contains(alias, "_value@")
		p.valueNot = !p.value
	}

	return p
}

// Classify returns every group whose rule matches the point, in rule table order
func Classify(point model.ExtractionPoint, multiPage bool) []Group {
	p := derive(point, multiPage)

	groups := make([]Group, 0, 2)
	for _, r := range rules {
		if r.match(p) {
			groups = append(groups, r.group)
		}
	}
	return groups
}

// In reports whether the point belongs to group
func In(point model.ExtractionPoint, multiPage bool, group Group) bool {
	p := derive(point, multiPage)
	for _, r := range rules {
		if r.group == group {
			return r.match(p)
		}
	}
	return false
}

// DivideIntoGroups batches points by group. A point is listed under every group it
// matches; within a group, points keep their input order.
func DivideIntoGroups(points []model.ExtractionPoint, multiPage bool) map[Group][]model.ExtractionPoint {
	batches := make(map[Group][]model.ExtractionPoint)
	for _, point := range points {
		for _, group := range Classify(point, multiPage) {
			batches[group] = append(batches[group], point)
		}
	}
	return batches
}

// AllGroups lists every group in rule table order
func AllGroups() []Group {
	groups := make([]Group, len(rules))
	for i, r := range rules {
		groups[i] = r.group
	}
	return groups
}

// Valid reports whether g is a known group
func (g Group) Valid() bool {
	for _, r := range rules {
		if r.group == g {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
