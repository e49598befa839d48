package store

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ConfigPatch is a partial config: a JSON object whose present fields
// overwrite the stored config. Absent fields are left unchanged, so setting
// a field to its type default is an explicit clear.
type ConfigPatch map[string]any

// ApplyPatch structurally merges patch over config and returns the merged
// config. Nested objects merge field-wise; tagged-union objects (any object
// carrying a "type" key) are replaced whole so a variant switch never mixes
// params from two variants. Arrays replace whole.
func ApplyPatch[C any](config C, patch ConfigPatch) (C, error) {
	var zero C
	base, err := toMap(config)
	if err != nil {
		return zero, err
	}
	merged := mergeMaps(base, map[string]any(patch))

	data, err := json.Marshal(merged)
	if err != nil {
		return zero, fmt.Errorf("marshal merged config: %w", err)
	}
	var out C
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode merged config: %w", err)
	}
	return out, nil
}

// DiffConfigs computes the patch that turns current into proposed: each
// field present iff it differs from current. Returns an empty patch when
// the configs are equal.
func DiffConfigs[C any](current, proposed C) (ConfigPatch, error) {
	cur, err := toMap(current)
	if err != nil {
		return nil, err
	}
	prop, err := toMap(proposed)
	if err != nil {
		return nil, err
	}
	return ConfigPatch(diffMaps(cur, prop)), nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode config object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// isVariant reports whether a JSON object is a tagged union value.
func isVariant(m map[string]any) bool {
	_, ok := m["type"]
	return ok
}

func mergeMaps(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		bv, exists := out[k]
		pm, pIsMap := pv.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if exists && pIsMap && bIsMap && !isVariant(pm) {
			out[k] = mergeMaps(bm, pm)
			continue
		}
		out[k] = pv
	}
	return out
}

func diffMaps(cur, prop map[string]any) map[string]any {
	diff := map[string]any{}
	for k, pv := range prop {
		cv, exists := cur[k]
		if !exists {
			diff[k] = pv
			continue
		}
		pm, pIsMap := pv.(map[string]any)
		cm, cIsMap := cv.(map[string]any)
		if pIsMap && cIsMap {
			if isVariant(pm) {
				// Variant objects switch atomically.
				if !reflect.DeepEqual(pm, cm) {
					diff[k] = pv
				}
				continue
			}
			sub := diffMaps(cm, pm)
			if len(sub) > 0 {
				diff[k] = sub
			}
			continue
		}
		if !reflect.DeepEqual(pv, cv) {
			diff[k] = pv
		}
	}
	// Fields removed in proposed count as cleared.
	for k, cv := range cur {
		if _, exists := prop[k]; !exists && cv != nil {
			diff[k] = nil
		}
	}
	return diff
}
