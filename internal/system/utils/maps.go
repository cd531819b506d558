package utils

import "sort"

// SortedKeys returns the keys of a string map in sorted order, giving map
// iteration a deterministic sequence.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
