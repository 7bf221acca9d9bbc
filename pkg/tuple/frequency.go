package tuple

import (
	"cmp"
	"slices"
)

// Entry is a key with its occurrence count.
type Entry[K cmp.Ordered] struct {
	Key   K
	Count int
}

// FrequencyMap counts occurrences of keys.
type FrequencyMap[K cmp.Ordered] struct {
	counts map[K]int
}

// NewFrequencyMap creates an empty frequency map.
func NewFrequencyMap[K cmp.Ordered]() *FrequencyMap[K] {
	return &FrequencyMap[K]{counts: make(map[K]int)}
}

// Add counts one occurrence of key.
func (f *FrequencyMap[K]) Add(key K) {
	f.counts[key]++
}

// AddN counts n occurrences of key.
func (f *FrequencyMap[K]) AddN(key K, n int) {
	f.counts[key] += n
}

// Count returns the occurrences of key.
func (f *FrequencyMap[K]) Count(key K) int {
	return f.counts[key]
}

// Len returns the number of distinct keys.
func (f *FrequencyMap[K]) Len() int {
	return len(f.counts)
}

// Total returns the sum of all counts.
func (f *FrequencyMap[K]) Total() int {
	total := 0
	for _, c := range f.counts {
		total += c
	}
	return total
}

// SortedEntries returns the entries by count descending, ties broken by key
// ascending.
func (f *FrequencyMap[K]) SortedEntries() []Entry[K] {
	entries := make([]Entry[K], 0, len(f.counts))
	for k, c := range f.counts {
		entries = append(entries, Entry[K]{Key: k, Count: c})
	}
	slices.SortFunc(entries, func(a, b Entry[K]) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return entries
}

// TopNValues counts the values of field across tuples and returns the n
// most frequent. A non-positive n returns no entries.
func TopNValues(tuples []*Tuple, field string, n int) []Entry[string] {
	freq := NewFrequencyMap[string]()
	for _, t := range tuples {
		i := t.Peer().Index(field)
		if i < 0 {
			continue
		}
		freq.Add(t.Value(i))
	}
	if n <= 0 {
		return []Entry[string]{}
	}
	entries := freq.SortedEntries()
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
