package storage

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/adverant/nexus/formextract-worker/internal/model"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.9632000000000001, 0.9632},
		{-0.2, 0},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := sanitizeConfidence(tt.in); got != tt.want {
			t.Errorf("sanitizeConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	in := []byte(`{"value":"a\u0000b\u0007c"}`)
	got := string(sanitizeJSONForPostgres(in))
	if got != `{"value":"ab c"}` {
		t.Errorf("sanitizeJSONForPostgres() = %s", got)
	}
}

func TestEncodeRun(t *testing.T) {
	contents := []model.Content{{
		Image:        "img-1",
		ExtractPoint: model.ExtractionPoint{DocumentField: "name"},
		ValueInfo:    []model.Field{{Key: "name", Value: "Jane\x00", Confidence: 0.50000001}},
	}}
	run := &RunRecord{JobID: "job-1", Contents: contents}

	contentsJSON, groupsJSON, err := encodeRun(run)
	if err != nil {
		t.Fatalf("encodeRun: %v", err)
	}
	if strings.Contains(string(contentsJSON), `\u0000`) {
		t.Errorf("null escape not removed: %s", contentsJSON)
	}
	if string(groupsJSON) != `{}` {
		t.Errorf("groups = %s", groupsJSON)
	}

	var decoded []model.Content
	if err := json.Unmarshal(contentsJSON, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0].ValueInfo[0].Value != "Jane" || decoded[0].ValueInfo[0].Confidence != 0.5 {
		t.Errorf("unexpected field: %+v", decoded[0].ValueInfo[0])
	}
	if contents[0].ValueInfo[0].Confidence != 0.50000001 {
		t.Error("input contents must not be modified")
	}
}

func TestGroupNames(t *testing.T) {
	groups := map[string][]string{
		"multipage_text_line_string":  {"a"},
		"around_text_img":             {"b"},
		"multipage_down_table_string": {"c"},
	}
	want := []string{"around_text_img", "multipage_down_table_string", "multipage_text_line_string"}
	if got := groupNames(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("groupNames() = %v", got)
	}
}
