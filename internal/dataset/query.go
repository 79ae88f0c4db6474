package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned for statements that are not a single read-only query.
var ErrInvalidQuery = errors.New("invalid dataset query")

// ValidateReadOnly normalises a statement and rejects anything but a single
// SELECT/WITH query. What the query may read is enforced by the engine Query
// runs it in, not here.
func ValidateReadOnly(statement string) (string, error) {
	s := strings.TrimSpace(statement)
	s = strings.TrimRight(s, "; \t\n")
	if s == "" {
		return "", fmt.Errorf("%w: empty statement", ErrInvalidQuery)
	}
	if strings.Contains(s, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrInvalidQuery)
	}

	head := strings.ToUpper(strings.Fields(s)[0])
	if head != "SELECT" && head != "WITH" {
		return "", fmt.Errorf("%w: only SELECT or WITH statements are allowed", ErrInvalidQuery)
	}
	return s, nil
}
