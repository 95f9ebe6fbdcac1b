package query

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// FormatAnswers renders answers one per line as sorted key=value pairs.
// No answers is "(none)"; an answer without holes is "(yes)".
func FormatAnswers(answers []Bindings) string {
	if len(answers) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, a := range answers {
		if len(a) == 0 {
			b.WriteString("(yes)\n")
			continue
		}
		for i, k := range slices.Sorted(maps.Keys(a)) {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%s", k, a[k])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
