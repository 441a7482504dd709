package extract

import "github.com/adverant/nexus/formextract-worker/internal/model"

// MergeFields folds b into a and returns a new list. Fields of b are matched
// by Key against a only: a match replaces the first field of a with that key
// at its position, anything else is appended in order, so repeated keys within
// b are all kept. Neither input is modified.
func MergeFields(a, b []model.Field) []model.Field {
	merged := make([]model.Field, 0, len(a)+len(b))
	index := make(map[string]int, len(a))

	for _, field := range a {
		if _, ok := index[field.Key]; !ok {
			index[field.Key] = len(merged)
		}
		merged = append(merged, field)
	}

	for _, field := range b {
		if i, ok := index[field.Key]; ok {
			merged[i] = field
			continue
		}
		merged = append(merged, field)
	}

	return merged
}
