package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tbxark/hrflow/workflow"
)

// MergeOperations returns one add operation per truthy extracted value, in key
// order. An add on an existing member replaces it, so later values win.
func MergeOperations(extracted map[string]any) []Operation {
	keys := make([]string, 0, len(extracted))
	for k, v := range extracted {
		if k == "" || !workflow.Truthy(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]Operation, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, Operation{Op: OperationAdd, Path: "/" + escapeJSONPointer(k), Value: extracted[k]})
	}
	return ops
}

// Merge applies the truthy values of extracted on top of current and returns a
// new map. current is not modified.
func Merge(current, extracted map[string]any) (map[string]any, error) {
	return ApplyRFC6902(current, MergeOperations(extracted))
}

func ApplyRFC6902(current map[string]any, ops []Operation) (map[string]any, error) {
	if current == nil {
		current = map[string]any{}
	}
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current fields: %w", err)
	}
	if len(ops) == 0 {
		return decodeFields(currentJSON)
	}

	patchJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch operations: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	modifiedJSON, err := patch.Apply(currentJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}
	return decodeFields(modifiedJSON)
}

func decodeFields(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return out, nil
}

func escapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}
