package repository

import (
	"fmt"
	"strings"

	"github.com/totegamma/ojstore/internal/domain"
)

// parentOf walks to the object holding the last segment of path, creating
// intermediate objects when create is set.
func parentOf(root map[string]any, path string, create bool) (map[string]any, string, error) {
	segments := strings.Split(path, ".")
	cur := root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg]
		if !ok || next == nil {
			if !create {
				return nil, "", nil
			}
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		switch child := next.(type) {
		case map[string]any:
			cur = child
		case domain.Fields:
			cur = child
		default:
			return nil, "", fmt.Errorf("%w: %s is not an object", domain.ErrInvalidArgument, seg)
		}
	}
	return cur, segments[len(segments)-1], nil
}

func getPath(root map[string]any, path string) (any, bool) {
	parent, leaf, err := parentOf(root, path, false)
	if err != nil || parent == nil {
		return nil, false
	}
	v, ok := parent[leaf]
	return v, ok
}

func setPath(root map[string]any, path string, value any) error {
	parent, leaf, err := parentOf(root, path, true)
	if err != nil {
		return err
	}
	parent[leaf] = value
	return nil
}

// intAt reads an integer field; a missing or null field reads as zero.
func intAt(root map[string]any, path string) (int64, error) {
	v, ok := getPath(root, path)
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := domain.AsInt64(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not an integer", domain.ErrInvalidArgument, path)
	}
	return n, nil
}

func incPath(root map[string]any, path string, delta int64) error {
	n, err := intAt(root, path)
	if err != nil {
		return err
	}
	return setPath(root, path, n+delta)
}

func arrayAt(root map[string]any, path string) ([]any, error) {
	v, ok := getPath(root, path)
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an array", domain.ErrInvalidArgument, path)
	}
	return arr, nil
}

func pushPath(root map[string]any, path string, value any) error {
	arr, err := arrayAt(root, path)
	if err != nil {
		return err
	}
	return setPath(root, path, append(arr, value))
}

func addToSetPath(root map[string]any, path string, value any) error {
	arr, err := arrayAt(root, path)
	if err != nil {
		return err
	}
	for _, e := range arr {
		if domain.SameValue(e, value) {
			return nil
		}
	}
	return setPath(root, path, append(arr, value))
}

func pullPath(root map[string]any, path string, values []any) error {
	arr, err := arrayAt(root, path)
	if err != nil || arr == nil {
		return err
	}
	kept := make([]any, 0, len(arr))
	for _, e := range arr {
		drop := false
		for _, v := range values {
			if domain.SameValue(e, v) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	return setPath(root, path, kept)
}
