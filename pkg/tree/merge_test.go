package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMap(t *testing.T, v map[string]interface{}) Map {
	t.Helper()
	m, ok := MapFromAny(v)
	require.True(t, ok)
	return m
}

func TestMergeIsIdempotent(t *testing.T) {
	delta := map[string]interface{}{
		"xx":    "RUNNING",
		"cycle": "running",
		"axes":  map[string]interface{}{"x": map[string]interface{}{"p": 1.5}},
	}

	once := mustMap(t, map[string]interface{}{"line": 3})
	Merge(once, mustMap(t, delta), false)

	twice := mustMap(t, map[string]interface{}{"line": 3})
	Merge(twice, mustMap(t, delta), false)
	Merge(twice, mustMap(t, delta), false)

	assert.True(t, Equal(once, twice))
}

func TestMergeSequentialEqualsUnion(t *testing.T) {
	d1 := map[string]interface{}{
		"xx":   "READY",
		"line": 10,
		"axes": map[string]interface{}{"x": 1, "y": 2},
	}
	d2 := map[string]interface{}{
		"line": 11,
		"pr":   "User pause",
		"axes": map[string]interface{}{"y": 5, "z": 7},
	}
	union := map[string]interface{}{
		"xx":   "READY",
		"line": 11,
		"pr":   "User pause",
		"axes": map[string]interface{}{"x": 1, "y": 5, "z": 7},
	}

	sequential := Map{}
	Merge(sequential, mustMap(t, d1), false)
	Merge(sequential, mustMap(t, d2), false)

	combined := Map{}
	Merge(combined, mustMap(t, union), false)

	assert.Equal(t, combined.ToAny(), sequential.ToAny())
}

func TestReplaceMergeDeletion(t *testing.T) {
	target := mustMap(t, map[string]interface{}{"a": 1, "b": 2})
	Merge(target, mustMap(t, map[string]interface{}{"a": 1}), true)
	assert.Equal(t, map[string]interface{}{"a": 1.0}, target.ToAny())

	target = mustMap(t, map[string]interface{}{"a": 1, "b": 2})
	Merge(target, mustMap(t, map[string]interface{}{"a": 1}), false)
	assert.Equal(t, map[string]interface{}{"a": 1.0, "b": 2.0}, target.ToAny())
}

func TestReplaceMergeNested(t *testing.T) {
	target := mustMap(t, map[string]interface{}{
		"admin": map[string]interface{}{"auto-check-upgrade": true, "stale": 1},
	})
	Merge(target, mustMap(t, map[string]interface{}{
		"admin": map[string]interface{}{"auto-check-upgrade": false},
	}), true)

	assert.Equal(t, map[string]interface{}{
		"admin": map[string]interface{}{"auto-check-upgrade": false},
	}, target.ToAny())
}

func TestMergePreservesIdentity(t *testing.T) {
	axes := Map{"x": S(1)}
	target := Map{"axes": axes}

	Merge(target, mustMap(t, map[string]interface{}{
		"axes": map[string]interface{}{"x": 2, "y": 3},
	}), false)

	// The nested map held by another component sees the update.
	assert.Equal(t, map[string]interface{}{"x": 2.0, "y": 3.0}, axes.ToAny())
}

func TestMergeNullOverwrites(t *testing.T) {
	target := mustMap(t, map[string]interface{}{"pr": "User pause"})
	Merge(target, mustMap(t, map[string]interface{}{"pr": nil}), false)

	v, ok := target["pr"]
	require.True(t, ok, "null must not delete the key")
	assert.True(t, v.(Scalar).Null())
}

func TestMergeKindReplacement(t *testing.T) {
	target := mustMap(t, map[string]interface{}{"a": map[string]interface{}{"b": 1}})
	Merge(target, mustMap(t, map[string]interface{}{"a": 5}), false)
	assert.Equal(t, map[string]interface{}{"a": 5.0}, target.ToAny())
}

func TestMergeLists(t *testing.T) {
	target := mustMap(t, map[string]interface{}{
		"motors": []interface{}{
			map[string]interface{}{"axis": "X", "microsteps": 16},
			map[string]interface{}{"axis": "Y"},
			map[string]interface{}{"axis": "Z"},
		},
	})
	first := target["motors"].(*List).Items[0].(Map)

	Merge(target, mustMap(t, map[string]interface{}{
		"motors": []interface{}{
			map[string]interface{}{"microsteps": 32},
			map[string]interface{}{"axis": "A"},
		},
	}), false)

	assert.Equal(t, []interface{}{
		map[string]interface{}{"axis": "X", "microsteps": 32.0},
		map[string]interface{}{"axis": "A"},
	}, target.ToAny()["motors"])
	assert.Equal(t, 32.0, first["microsteps"].(Scalar).V, "list elements are merged in place")
}

func TestMergeCopiesUpdateValues(t *testing.T) {
	update := mustMap(t, map[string]interface{}{"axes": map[string]interface{}{"x": 1}})
	target := Map{}
	Merge(target, update, false)

	update["axes"].(Map)["x"] = S(99)
	assert.Equal(t, 1.0, target["axes"].(Map)["x"].(Scalar).V)
}

func TestConflicts(t *testing.T) {
	target := mustMap(t, map[string]interface{}{
		"xx":     "READY",
		"axes":   map[string]interface{}{"x": 1},
		"motors": []interface{}{map[string]interface{}{"axis": "X"}},
		"pr":     nil,
	})

	tests := []struct {
		name   string
		update map[string]interface{}
		want   []string
	}{
		{"compatible", map[string]interface{}{"xx": "RUNNING", "axes": map[string]interface{}{"x": 2}}, nil},
		{"new keys", map[string]interface{}{"line": 4}, nil},
		{"scalar to map", map[string]interface{}{"xx": map[string]interface{}{"v": 1}}, []string{"xx"}},
		{"map to scalar", map[string]interface{}{"axes": 1}, []string{"axes"}},
		{"nested", map[string]interface{}{"axes": map[string]interface{}{"x": map[string]interface{}{}}}, []string{"axes.x"}},
		{"list element", map[string]interface{}{"motors": []interface{}{"X"}}, []string{"motors.0"}},
		{"null is compatible", map[string]interface{}{"pr": map[string]interface{}{"a": 1}, "xx": nil}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Conflicts(target, mustMap(t, tt.update)))
		})
	}
}
