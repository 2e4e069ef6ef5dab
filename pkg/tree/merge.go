package tree

// Merge applies update onto target in place.
//
// Keys whose values are maps on both sides (or lists on both sides) are merged
// recursively; every other key is overwritten with a copy of the update value,
// including a map replaced by a scalar or the reverse. A null scalar in the
// update overwrites, it never deletes.
//
// With removeAbsent set, keys of target that are missing from update are
// deleted before the update is applied. The flag is passed down, so nested
// maps reached through the recursion are replace-merged the same way.
func Merge(target, update Map, removeAbsent bool) {
	if removeAbsent {
		for key := range target {
			if _, ok := update[key]; !ok {
				delete(target, key)
			}
		}
	}

	for key, value := range update {
		target[key] = mergeValue(target[key], value, removeAbsent)
	}
}

func mergeValue(dst, src Value, removeAbsent bool) Value {
	switch s := src.(type) {
	case Map:
		if d, ok := dst.(Map); ok {
			Merge(d, s, removeAbsent)
			return d
		}
	case *List:
		if d, ok := dst.(*List); ok {
			mergeList(d, s, removeAbsent)
			return d
		}
	}
	return Clone(src)
}

// mergeList merges index-wise; the list always ends up with the update's length.
func mergeList(dst, src *List, removeAbsent bool) {
	for i, item := range src.Items {
		if i < len(dst.Items) {
			dst.Items[i] = mergeValue(dst.Items[i], item, removeAbsent)
		} else {
			dst.Items = append(dst.Items, Clone(item))
		}
	}
	dst.Items = dst.Items[:len(src.Items)]
}

// Conflicts returns the paths at which applying update would change the kind
// of an existing value (scalar to map, list to scalar, ...). Null scalars are
// compatible with every kind.
func Conflicts(target, update Map) []string {
	var paths []string
	collectConflicts("", target, update, &paths)
	return paths
}

func collectConflicts(prefix string, target, update Map, paths *[]string) {
	for _, key := range update.Keys() {
		existing, ok := target[key]
		if !ok {
			continue
		}
		valueConflicts(join(prefix, key), existing, update[key], paths)
	}
}

func valueConflicts(path string, existing, incoming Value, paths *[]string) {
	if isNull(existing) || isNull(incoming) {
		return
	}
	if existing.Kind() != incoming.Kind() {
		*paths = append(*paths, path)
		return
	}

	switch e := existing.(type) {
	case Map:
		collectConflicts(path, e, incoming.(Map), paths)
	case *List:
		in := incoming.(*List)
		for i := 0; i < len(e.Items) && i < len(in.Items); i++ {
			valueConflicts(join(path, itoa(i)), e.Items[i], in.Items[i], paths)
		}
	}
}

func isNull(v Value) bool {
	s, ok := v.(Scalar)
	return v == nil || (ok && s.Null())
}
