package ingest

import (
	"encoding/json"
	"fmt"
)

// MergePatch applies an RFC 7396 JSON merge patch: patch's object fields
// are recursively overlaid onto target; a null value deletes the
// corresponding key; any non-object patch value (including arrays)
// replaces the target wholesale. No library in the reference corpus
// implements merge-patch, so this is the one component in this package
// built directly against the standard library rather than a third-party
// codec.
func MergePatch(target, patch []byte) ([]byte, error) {
	var patchVal any
	if err := json.Unmarshal(patch, &patchVal); err != nil {
		return nil, fmt.Errorf("ingest: merge patch: invalid patch json: %w", err)
	}

	patchObj, ok := patchVal.(map[string]any)
	if !ok {
		// A non-object patch replaces the target wholesale, per RFC 7396.
		return json.Marshal(patchVal)
	}

	var targetVal any
	if len(target) == 0 {
		targetVal = map[string]any{}
	} else if err := json.Unmarshal(target, &targetVal); err != nil {
		return nil, fmt.Errorf("ingest: merge patch: invalid target json: %w", err)
	}

	targetObj, ok := targetVal.(map[string]any)
	if !ok {
		targetObj = map[string]any{}
	}

	merged := mergeObjects(targetObj, patchObj)
	return json.Marshal(merged)
}

func mergeObjects(target, patch map[string]any) map[string]any {
	if target == nil {
		target = map[string]any{}
	}
	for key, patchValue := range patch {
		if patchValue == nil {
			delete(target, key)
			continue
		}
		patchChild, patchIsObj := patchValue.(map[string]any)
		if !patchIsObj {
			target[key] = patchValue
			continue
		}
		targetChild, targetIsObj := target[key].(map[string]any)
		if !targetIsObj {
			targetChild = map[string]any{}
		}
		target[key] = mergeObjects(targetChild, patchChild)
	}
	return target
}
