// label.go parses the --container-label selector and turns it into Engine
// API list filters.
package docker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/docker/docker/api/types/filters"
)

// LabelSelector selects containers by label. An empty Value matches any
// container carrying the Key label, whatever its value.
type LabelSelector struct {
	// Key is the label name, e.g. "com.example.role".
	Key string

	// Value is the required label value. Empty means any value.
	Value string
}

// ParseLabelSelector parses "key=value" or "key".
func ParseLabelSelector(s string) (LabelSelector, error) {
	// Only the first "=" separates key and value; the value may contain
	// further "=" characters.
	key, value, _ := strings.Cut(s, "=")
	if key == "" {
		return LabelSelector{}, fmt.Errorf("invalid label selector %q: empty key", s)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return LabelSelector{}, fmt.Errorf("invalid label selector %q: key contains whitespace", s)
	}
	return LabelSelector{Key: key, Value: value}, nil
}

// String returns the selector in the form accepted by the Engine API
// "label" filter.
func (s LabelSelector) String() string {
	if s.Value == "" {
		return s.Key
	}
	return s.Key + "=" + s.Value
}

// filterArgs builds the server-side filter: running containers matching
// the selector.
func (s LabelSelector) filterArgs() filters.Args {
	return filters.NewArgs(
		filters.Arg("label", s.String()),
		filters.Arg("status", "running"),
	)
}
