package core_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/concord/pkg/core"
)

func TestVectorClock(t *testing.T) {
	t.Run("New vector clock is empty", func(t *testing.T) {
		c := core.NewVectorClock()
		assert.Equal(t, 0, c.Len())
		assert.Equal(t, "", c.String())
	})

	t.Run("FromMap rejects negative counters", func(t *testing.T) {
		_, err := core.VectorClockFromMap(map[core.DeviceID]int64{"a": 1, "b": -1})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrValidation)

		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("FromMap rejects empty devices", func(t *testing.T) {
		_, err := core.VectorClockFromMap(map[core.DeviceID]int64{"": 1})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("FromMap drops zero counters", func(t *testing.T) {
		c := vc(t, map[core.DeviceID]int64{"a": 0, "b": 2})
		assert.Equal(t, []core.DeviceID{"b"}, c.Devices())
		assert.True(t, c.Equals(vc(t, map[core.DeviceID]int64{"b": 2})))
	})

	t.Run("Increment is copy on write", func(t *testing.T) {
		c := vc(t, map[core.DeviceID]int64{"a": 1})
		next := c.Increment("a").Increment("b")

		assert.Equal(t, uint64(1), c.Get("a"))
		assert.Equal(t, uint64(0), c.Get("b"))
		assert.Equal(t, uint64(2), next.Get("a"))
		assert.Equal(t, uint64(1), next.Get("b"))
		assert.True(t, next.HappensAfter(c))
		assert.True(t, core.NewVectorClock().Increment("z").HappensAfter(core.NewVectorClock()))
	})

	t.Run("Merge takes maximum values", func(t *testing.T) {
		a := vc(t, map[core.DeviceID]int64{"node1": 5, "node2": 3})
		b := vc(t, map[core.DeviceID]int64{"node1": 3, "node2": 5, "node3": 1})

		m := a.Merge(b)
		assert.Equal(t, "node1:5,node2:5,node3:1", m.String())
		assert.True(t, m.HappensAfter(a) || m.Equals(a))
		assert.True(t, m.HappensAfter(b) || m.Equals(b))

		same := a.Merge(a)
		assert.True(t, same.Equals(a))
	})

	t.Run("String is sorted by device", func(t *testing.T) {
		c := vc(t, map[core.DeviceID]int64{"zeta": 1, "alpha": 7, "mid": 2})
		assert.Equal(t, "alpha:7,mid:2,zeta:1", c.String())
	})

	t.Run("JSON uses an object of counters", func(t *testing.T) {
		c := vc(t, map[core.DeviceID]int64{"a": 2, "b": 1})
		data, err := json.Marshal(c)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2,"b":1}`, string(data))

		var back core.VectorClock
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.Equals(c))

		err = json.Unmarshal([]byte(`{"a":-3}`), &back)
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestVectorClock_HappensAfter(t *testing.T) {
	cases := []struct {
		name  string
		self  map[core.DeviceID]int64
		other map[core.DeviceID]int64
		want  bool
	}{
		{"strictly greater", map[core.DeviceID]int64{"a": 2, "b": 3}, map[core.DeviceID]int64{"a": 1, "b": 2}, true},
		{"greater on one device", map[core.DeviceID]int64{"a": 2, "b": 2}, map[core.DeviceID]int64{"a": 1, "b": 2}, true},
		{"knows an extra device", map[core.DeviceID]int64{"a": 1, "b": 1}, map[core.DeviceID]int64{"a": 1}, true},
		{"equal", map[core.DeviceID]int64{"a": 1, "b": 2}, map[core.DeviceID]int64{"a": 1, "b": 2}, false},
		{"lower on one device", map[core.DeviceID]int64{"a": 2, "b": 1}, map[core.DeviceID]int64{"a": 1, "b": 2}, false},
		{"missing a device the other saw", map[core.DeviceID]int64{"a": 5}, map[core.DeviceID]int64{"a": 1, "b": 1}, false},
		{"disjoint", map[core.DeviceID]int64{"a": 1}, map[core.DeviceID]int64{"b": 1}, false},
		{"empty after empty", nil, nil, false},
		{"anything after empty", map[core.DeviceID]int64{"a": 1}, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			self, other := vc(t, tc.self), vc(t, tc.other)
			assert.Equal(t, tc.want, self.HappensAfter(other))
			assert.Equal(t, tc.want, other.HappensBefore(self))
		})
	}
}

func TestVectorClock_Trichotomy(t *testing.T) {
	clocks := []core.VectorClock{
		core.NewVectorClock(),
		vc(t, map[core.DeviceID]int64{"a": 1}),
		vc(t, map[core.DeviceID]int64{"b": 1}),
		vc(t, map[core.DeviceID]int64{"a": 1, "b": 1}),
		vc(t, map[core.DeviceID]int64{"a": 2, "b": 1}),
		vc(t, map[core.DeviceID]int64{"a": 1, "b": 2}),
		vc(t, map[core.DeviceID]int64{"a": 2, "b": 2, "c": 1}),
		vc(t, map[core.DeviceID]int64{"c": 4}),
	}

	for _, a := range clocks {
		assert.False(t, a.HappensAfter(a), "irreflexive: %s", a)
		for _, b := range clocks {
			before, after, equal := a.HappensBefore(b), a.HappensAfter(b), a.Equals(b)
			concurrent := !before && !after && !equal

			holds := 0
			for _, rel := range []bool{before, after, equal, concurrent} {
				if rel {
					holds++
				}
			}
			assert.Equal(t, 1, holds, "exactly one relation between %s and %s", a, b)

			if after {
				assert.False(t, b.HappensAfter(a), "antisymmetric: %s / %s", a, b)
			}

			switch a.Compare(b) {
			case core.Equal:
				assert.True(t, equal)
			case core.Before:
				assert.True(t, before)
			case core.After:
				assert.True(t, after)
			case core.Concurrent:
				assert.True(t, concurrent)
				assert.True(t, a.IsConcurrentWith(b))
			}
		}
	}
}
