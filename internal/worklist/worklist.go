// Package worklist parses the comma-delimited source key list and splits it
// deterministically across shard instances.
package worklist

import (
	"fmt"
	"strings"
)

// PartitionError reports invalid shard parameters. It aborts the run before
// any item is processed.
type PartitionError struct {
	Index int
	Total int
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("invalid shard parameters: index=%d total=%d (need total >= 1 and 0 <= index < total)", e.Index, e.Total)
}

// Parse splits a comma-delimited work list, trims each token, and drops
// empties. Duplicate keys are kept: the partition contract is positional.
func Parse(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		keys = append(keys, p)
	}
	return keys
}

// Partition returns the order-preserving sub-sequence of items whose original
// index is congruent to index modulo total. The union of all partitions over
// index in [0, total) reconstructs items exactly.
func Partition(items []string, index, total int) ([]string, error) {
	if total < 1 || index < 0 || index >= total {
		return nil, &PartitionError{Index: index, Total: total}
	}
	var out []string
	for i, item := range items {
		if i%total == index {
			out = append(out, item)
		}
	}
	return out, nil
}
