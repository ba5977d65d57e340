package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// foldCaser performs Unicode case folding ahead of ordinal-ignore-case
// comparisons used by filter, sort, and output column-name de-duplication;
// groupBy and join keys use the unfolded stringify rendering. The source
// system performs a plain ordinal compare after folding, not locale-aware
// collation, so we intentionally use cases.Fold (not text/collate) and then
// compare folded strings byte-wise.
var foldCaser = cases.Fold()

// stringify renders a cell value the way the engine's filter/sort/groupBy
// comparisons see it: null cells compare as empty string, everything else is
// the invariant-culture-ish textual rendering of the value.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

// ordinalEqualFold reports whether a and b are equal after case folding.
func ordinalEqualFold(a, b string) bool {
	return foldCaser.String(a) == foldCaser.String(b)
}

// ordinalContainsFold reports whether haystack contains needle after case folding.
func ordinalContainsFold(haystack, needle string) bool {
	return strings.Contains(foldCaser.String(haystack), foldCaser.String(needle))
}

// ordinalCompareFold compares a and b after case folding, for sort ordering.
func ordinalCompareFold(a, b string) int {
	return strings.Compare(foldCaser.String(a), foldCaser.String(b))
}

// groupKeySeparator guarantees no collision with any printable cell value.
const groupKeySeparator = ""

// buildKey joins stringified values with the unit-separator used for group
// and join composite keys.
func buildKey(values []string) string {
	return strings.Join(values, groupKeySeparator)
}
