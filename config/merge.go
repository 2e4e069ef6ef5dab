package config

import (
	"github.com/grovetools/cncctl/pkg/tree"
)

// mergeLayer merges a raw configuration layer into the accumulated layers.
// Nested sections merge key by key so an override file only needs the keys
// it changes. Lists merge index-wise and take the later layer's length.
func mergeLayer(merged tree.Map, layer map[string]interface{}) {
	if len(layer) == 0 {
		return
	}
	update, ok := tree.MapFromAny(layer)
	if !ok {
		return
	}
	tree.Merge(merged, update, false)
}
