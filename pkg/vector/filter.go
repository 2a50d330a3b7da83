package vector

import (
	"log/slog"
	"reflect"
	"strings"

	"github.com/Zereker/storekit/pkg/errdefs"
	"github.com/Zereker/storekit/pkg/schema"
)

// FilterPolicy decides what happens to predicates a backend cannot translate.
type FilterPolicy int

const (
	// FilterPolicyDrop omits untranslatable predicates and logs them.
	FilterPolicyDrop FilterPolicy = iota
	// FilterPolicyStrict fails the query with errdefs.ErrQuery.
	FilterPolicyStrict
)

// ParseFilterPolicy accepts "drop" (or empty) and "strict".
func ParseFilterPolicy(s string) (FilterPolicy, error) {
	switch strings.ToLower(s) {
	case "", "drop":
		return FilterPolicyDrop, nil
	case "strict":
		return FilterPolicyStrict, nil
	default:
		return FilterPolicyDrop, errdefs.Query("unknown filter policy %q", s)
	}
}

// Dropped is a predicate left out of a translated filter.
type Dropped struct {
	Filter schema.MetadataFilter
	Reason string
}

// Matcher reports whether an entry with metadata and indexID satisfies a filter.
type Matcher func(metadata map[string]any, indexID string) bool

// MatchFunc translates filters into an in-memory predicate.
// A nil or empty filter set matches everything.
func MatchFunc(filters *schema.MetadataFilters) (Matcher, []Dropped, error) {
	var (
		checks  []Matcher
		dropped []Dropped
	)

	for _, f := range filtersOf(filters) {
		if err := validateFilter(f); err != nil {
			return nil, nil, err
		}
		if f.FilterType != schema.ExactMatch {
			dropped = append(dropped, Dropped{Filter: f, Reason: "unsupported filter type"})
			continue
		}

		key, want := f.Key, f.Value
		if key == FilterKeyIndexID {
			checks = append(checks, func(_ map[string]any, indexID string) bool {
				return valuesEqual(indexID, want)
			})
			continue
		}
		checks = append(checks, func(metadata map[string]any, _ string) bool {
			got, ok := metadata[key]
			return ok && valuesEqual(got, want)
		})
	}

	return func(metadata map[string]any, indexID string) bool {
		for _, check := range checks {
			if !check(metadata, indexID) {
				return false
			}
		}
		return true
	}, dropped, nil
}

// OpenSearchClauses translates filters into bool/filter term clauses.
// The indexId key maps to the top-level field, every other key to <metadataField>.<key>.
func OpenSearchClauses(filters *schema.MetadataFilters, metadataField string) ([]map[string]any, []Dropped, error) {
	var (
		clauses []map[string]any
		dropped []Dropped
	)

	for _, f := range filtersOf(filters) {
		if err := validateFilter(f); err != nil {
			return nil, nil, err
		}
		if f.FilterType != schema.ExactMatch {
			dropped = append(dropped, Dropped{Filter: f, Reason: "unsupported filter type"})
			continue
		}

		path := metadataField + "." + f.Key
		if f.Key == FilterKeyIndexID {
			path = FilterKeyIndexID
		}
		clauses = append(clauses, map[string]any{"term": map[string]any{path: f.Value}})
	}

	return clauses, dropped, nil
}

// applyPolicy logs dropped predicates, or rejects them under FilterPolicyStrict.
func applyPolicy(policy FilterPolicy, dropped []Dropped, logger *slog.Logger) error {
	if len(dropped) == 0 {
		return nil
	}
	if policy == FilterPolicyStrict {
		d := dropped[0]
		return errdefs.Query("%s %q for key %q", d.Reason, d.Filter.FilterType, d.Filter.Key)
	}
	for _, d := range dropped {
		logger.Warn("filter dropped",
			"key", d.Filter.Key,
			"filter_type", d.Filter.FilterType,
			"reason", d.Reason,
		)
	}
	return nil
}

func filtersOf(filters *schema.MetadataFilters) []schema.MetadataFilter {
	if filters == nil {
		return nil
	}
	return filters.Filters
}

func validateFilter(f schema.MetadataFilter) error {
	if f.Key == "" {
		return errdefs.Query("filter key is required")
	}
	if f.Value == nil {
		return errdefs.Query("filter %q has no value", f.Key)
	}
	return nil
}

// valuesEqual compares JSON-like values, numbers compare by value regardless of Go type.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
