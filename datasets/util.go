package datasets

import (
	"fmt"
	"strconv"
	"strings"
)

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// ParseBoundaries parses a comma-separated boundary list such as
// "0,32,64,96,128" into ints, for CLI and config-file use.
func ParseBoundaries(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	boundaries := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := parseInt(p)
		if err != nil {
			return nil, fmt.Errorf("bad boundary %q: %w", p, err)
		}
		boundaries = append(boundaries, v)
	}
	return boundaries, nil
}
