package index

import (
	"fmt"
	"strings"
)

// isUniqueViolation reports whether err came from a SQLite UNIQUE
// constraint failure. modernc.org/sqlite does not export a typed
// constraint-violation error the way cgo-based drivers do, so this
// matches on the driver's error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// inClause builds a "col IN (?, ?, ...)" fragment for query, which must
// contain exactly one %s placeholder for the generated "?, ?, ..." list.
func inClause(query string, values []string) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")

	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}

	return fmt.Sprintf(query, placeholders), args
}
