package consumer

import (
	"fmt"
	"strings"

	"github.com/hugolhafner/go-kcore/kafka"
)

// OffsetPolicy decides where a consumer starts on a newly assigned partition.
type OffsetPolicy int

const (
	// Latest keeps the offset the group offers: the committed offset, or the
	// end of the partition for a group that never committed.
	Latest OffsetPolicy = iota
	// Earliest rewinds every assigned partition to its beginning.
	Earliest
)

func (p OffsetPolicy) String() string {
	switch p {
	case Latest:
		return "latest"
	case Earliest:
		return "earliest"
	default:
		return "unknown"
	}
}

func ParseOffsetPolicy(s string) (OffsetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latest":
		return Latest, nil
	case "earliest":
		return Earliest, nil
	default:
		return Latest, fmt.Errorf("unknown offset policy %q", s)
	}
}

// ResetOffset is the transport reset offset matching the policy, used for
// partitions without a committed offset.
func (p OffsetPolicy) ResetOffset() int64 {
	if p == Earliest {
		return kafka.OffsetBeginning
	}
	return kafka.OffsetEnd
}

// ApplyOffsetPolicy returns the starting offsets for assignment under policy.
// The input is never modified.
func ApplyOffsetPolicy(assignment []kafka.PartitionOffset, policy OffsetPolicy) []kafka.PartitionOffset {
	out := make([]kafka.PartitionOffset, len(assignment))
	copy(out, assignment)

	if policy != Earliest {
		return out
	}

	for i := range out {
		out[i].Offset = kafka.Offset{LeaderEpoch: -1, Offset: kafka.OffsetBeginning}
	}
	return out
}
