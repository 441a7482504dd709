package storage

import (
	"regexp"

	"github.com/adverant/nexus/formextract-worker/internal/model"
)

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeConfidence clamps confidence to [0, 1] and rounds it to 4 decimal places.
// Values like 0.9632000000000001 otherwise break NUMERIC casts downstream.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// sanitizeJSONForPostgres removes Unicode escapes that JSONB rejects.
// \u0000 is dropped, other control character escapes become a space.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}

// sanitizeContents copies contents with field confidences sanitized
func sanitizeContents(contents []model.Content) []model.Content {
	out := make([]model.Content, len(contents))
	for i, c := range contents {
		out[i] = c
		fields := make([]model.Field, len(c.ValueInfo))
		for j, f := range c.ValueInfo {
			f.Confidence = sanitizeConfidence(f.Confidence)
			fields[j] = f
		}
		out[i].ValueInfo = fields
	}
	return out
}
