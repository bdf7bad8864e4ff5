// Package persistence implements the flat-file TaskRepository,
// HistoryRepository, and LogRepository contracts (spec §4.10), plus a
// supplemental ConfigRepository for config.yaml.
package persistence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NextID scans existing for the given year and returns the next YYYY-NNNN
// identifier, monotonically increasing against whatever IDs already exist
// for that calendar year (spec §3.2).
func NextID(year int, existing []string) string {
	max := 0
	prefix := fmt.Sprintf("%04d-", year)
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, max+1)
}

// NewID is NextID for the current year.
func NewID(existing []string) string {
	return NextID(time.Now().Year(), existing)
}
