package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

const partitionPrefix = "partition_"
const partitionDigits = 5

// PartitionName formats a zero-padded, 5-digit partition name for index n.
func PartitionName(n int) string {
	return fmt.Sprintf("%s%0*d", partitionPrefix, partitionDigits, n)
}

// parsePartitionIndex extracts the integer suffix from a partition_NNNNN
// name.
func parsePartitionIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, partitionPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, partitionPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
