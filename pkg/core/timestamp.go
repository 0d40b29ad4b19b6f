package core

import "strings"

// LogicalTimestamp is a total-order key derived from a vector clock. It only
// breaks ties between operations the clocks leave unordered.
type LogicalTimestamp struct {
	Device    DeviceID
	Timestamp uint64
	ClockHash string
}

// TimestampFromClock takes the highest counter of vc. On equal maxima the
// first device in sorted order wins.
func TimestampFromClock(vc VectorClock) LogicalTimestamp {
	ts := LogicalTimestamp{ClockHash: vc.String()}
	for _, e := range vc.entries {
		if e.counter > ts.Timestamp {
			ts.Timestamp = e.counter
			ts.Device = e.device
		}
	}
	return ts
}

// Compare orders by timestamp, then clock hash, then device.
func (t LogicalTimestamp) Compare(other LogicalTimestamp) int {
	switch {
	case t.Timestamp < other.Timestamp:
		return -1
	case t.Timestamp > other.Timestamp:
		return 1
	}
	if c := strings.Compare(t.ClockHash, other.ClockHash); c != 0 {
		return c
	}
	return strings.Compare(string(t.Device), string(other.Device))
}

// IsConcurrentWith reports equal timestamps derived from different clocks.
func (t LogicalTimestamp) IsConcurrentWith(other LogicalTimestamp) bool {
	return t.Timestamp == other.Timestamp && t.ClockHash != other.ClockHash
}
