package core

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

type clockEntry struct {
	device  DeviceID
	counter uint64
}

// VectorClock is an immutable map of device -> logical counter, kept sorted by
// device so iteration and encoding are deterministic. Devices with a zero
// counter are not stored. The zero value is the empty clock.
type VectorClock struct {
	entries []clockEntry
}

// Ordering is the causal relation between two clocks.
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	}
	return "concurrent"
}

// NewVectorClock returns an empty clock.
func NewVectorClock() VectorClock {
	return VectorClock{}
}

// VectorClockFromMap builds a clock from raw counters. Negative counters and
// empty device ids are rejected.
func VectorClockFromMap(counters map[DeviceID]int64) (VectorClock, error) {
	entries := make([]clockEntry, 0, len(counters))
	for d, c := range counters {
		if d == "" {
			return VectorClock{}, invalid("vector clock", "empty device id")
		}
		if c < 0 {
			return VectorClock{}, invalid("vector clock", "negative counter for device "+string(d))
		}
		if c == 0 {
			continue
		}
		entries = append(entries, clockEntry{device: d, counter: uint64(c)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].device < entries[j].device })
	return VectorClock{entries: entries}, nil
}

func (vc VectorClock) search(d DeviceID) (int, bool) {
	i := sort.Search(len(vc.entries), func(i int) bool { return vc.entries[i].device >= d })
	return i, i < len(vc.entries) && vc.entries[i].device == d
}

// Get returns the counter of d, 0 when unknown.
func (vc VectorClock) Get(d DeviceID) uint64 {
	if i, ok := vc.search(d); ok {
		return vc.entries[i].counter
	}
	return 0
}

// Len is the number of devices with a non-zero counter.
func (vc VectorClock) Len() int {
	return len(vc.entries)
}

// Devices returns the known devices in sorted order.
func (vc VectorClock) Devices() []DeviceID {
	out := make([]DeviceID, len(vc.entries))
	for i, e := range vc.entries {
		out[i] = e.device
	}
	return out
}

// Map returns a copy of the counters.
func (vc VectorClock) Map() map[DeviceID]uint64 {
	out := make(map[DeviceID]uint64, len(vc.entries))
	for _, e := range vc.entries {
		out[e.device] = e.counter
	}
	return out
}

// Increment returns a copy of the clock with d's counter advanced by one.
func (vc VectorClock) Increment(d DeviceID) VectorClock {
	i, ok := vc.search(d)
	entries := make([]clockEntry, 0, len(vc.entries)+1)
	entries = append(entries, vc.entries[:i]...)
	if ok {
		entries = append(entries, clockEntry{device: d, counter: vc.entries[i].counter + 1})
		i++
	} else {
		entries = append(entries, clockEntry{device: d, counter: 1})
	}
	entries = append(entries, vc.entries[i:]...)
	return VectorClock{entries: entries}
}

// Merge returns the pointwise maximum of both clocks.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	a, b := vc.entries, other.entries
	entries := make([]clockEntry, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		switch {
		case a[0].device < b[0].device:
			entries = append(entries, a[0])
			a = a[1:]
		case a[0].device > b[0].device:
			entries = append(entries, b[0])
			b = b[1:]
		default:
			e := a[0]
			if b[0].counter > e.counter {
				e = b[0]
			}
			entries = append(entries, e)
			a, b = a[1:], b[1:]
		}
	}
	entries = append(entries, a...)
	entries = append(entries, b...)
	return VectorClock{entries: entries}
}

// HappensAfter reports whether vc strictly dominates other: no counter is
// lower, at least one is higher, and vc knows every device other has seen.
func (vc VectorClock) HappensAfter(other VectorClock) bool {
	greater := false
	for _, e := range vc.entries {
		oc := other.Get(e.device)
		if e.counter < oc {
			return false
		}
		if e.counter > oc {
			greater = true
		}
	}
	for _, e := range other.entries {
		if _, ok := vc.search(e.device); !ok && e.counter > 0 {
			return false
		}
	}
	return greater
}

// HappensBefore reports whether other strictly dominates vc.
func (vc VectorClock) HappensBefore(other VectorClock) bool {
	return other.HappensAfter(vc)
}

// IsConcurrentWith is true when neither clock happens before the other.
// Equal clocks are reported as concurrent.
func (vc VectorClock) IsConcurrentWith(other VectorClock) bool {
	return !vc.HappensAfter(other) && !vc.HappensBefore(other)
}

// Equals reports whether both clocks hold the same counters.
func (vc VectorClock) Equals(other VectorClock) bool {
	if len(vc.entries) != len(other.entries) {
		return false
	}
	for i, e := range vc.entries {
		if other.entries[i] != e {
			return false
		}
	}
	return true
}

// Compare classifies the causal relation of vc to other.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	switch {
	case vc.Equals(other):
		return Equal
	case vc.HappensAfter(other):
		return After
	case vc.HappensBefore(other):
		return Before
	}
	return Concurrent
}

// String encodes the clock as "device:counter" pairs sorted by device.
func (vc VectorClock) String() string {
	var sb strings.Builder
	for i, e := range vc.entries {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(string(e.device))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(e.counter, 10))
	}
	return sb.String()
}

func (vc VectorClock) MarshalJSON() ([]byte, error) {
	return json.Marshal(vc.Map())
}

func (vc *VectorClock) UnmarshalJSON(data []byte) error {
	var raw map[DeviceID]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := VectorClockFromMap(raw)
	if err != nil {
		return err
	}
	*vc = parsed
	return nil
}
