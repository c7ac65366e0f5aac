package gstore

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
)

// ErrEmptyKey is returned for a change set containing an empty key.
var ErrEmptyKey = errors.New("empty key")

// NormalizeChanges returns a copy of changes sorted by key
// with duplicates collapsed so that the last change to a key wins.
// Store implementations apply the normalized set.
func NormalizeChanges(changes []Change) ([]Change, error) {
	out := make([]Change, 0, len(changes))
	for i, c := range changes {
		if len(c.Key) == 0 {
			return nil, fmt.Errorf("change %d: %w", i, ErrEmptyKey)
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, func(a, b Change) int {
		return bytes.Compare(a.Key, b.Key)
	})

	// Keep the last of each run of equal keys.
	dst := out[:0]
	for i, c := range out {
		if i+1 < len(out) && bytes.Equal(c.Key, out[i+1].Key) {
			continue
		}
		dst = append(dst, c)
	}
	return dst, nil
}

// PrefixEnd returns the smallest key greater than every key with the given prefix,
// or nil if there is no such key (the prefix is empty or all 0xff bytes).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
