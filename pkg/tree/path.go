package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Paths address nodes with dot separated segments. List elements are
// addressed by their decimal index, e.g. "motors.0.max-velocity".

// Get returns the value at path.
func Get(root Map, path string) (Value, bool) {
	var cur Value = root
	for _, seg := range split(path) {
		switch node := cur.(type) {
		case Map:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case *List:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node.Items) {
				return nil, false
			}
			cur = node.Items[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at path, creating intermediate maps as needed.
// It fails when an intermediate node is a scalar or a list index is out of range.
func Set(root Map, path string, v Value) error {
	segs := split(path)
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}

	var cur Value = root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case Map:
			if last {
				node[seg] = v
				return nil
			}
			next, ok := node[seg]
			if !ok || isNull(next) {
				next = Map{}
				node[seg] = next
			}
			cur = next
		case *List:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node.Items) {
				return fmt.Errorf("index %q out of range at %s", seg, strings.Join(segs[:i], "."))
			}
			if last {
				node.Items[idx] = v
				return nil
			}
			cur = node.Items[idx]
		default:
			return fmt.Errorf("cannot descend into %s at %s", cur.Kind(), strings.Join(segs[:i], "."))
		}
	}
	return nil
}

// String returns the string at path.
func String(root Map, path string) (string, bool) {
	v, ok := Get(root, path)
	if !ok {
		return "", false
	}
	s, ok := v.(Scalar)
	if !ok {
		return "", false
	}
	str, ok := s.V.(string)
	return str, ok
}

// Float returns the number at path.
func Float(root Map, path string) (float64, bool) {
	v, ok := Get(root, path)
	if !ok {
		return 0, false
	}
	s, ok := v.(Scalar)
	if !ok {
		return 0, false
	}
	f, ok := s.V.(float64)
	return f, ok
}

// Bool returns the boolean at path.
func Bool(root Map, path string) (bool, bool) {
	v, ok := Get(root, path)
	if !ok {
		return false, false
	}
	s, ok := v.(Scalar)
	if !ok {
		return false, false
	}
	b, ok := s.V.(bool)
	return b, ok
}

func split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func itoa(i int) string { return strconv.Itoa(i) }
