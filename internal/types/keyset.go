package types

import (
	"sort"
	"strings"
)

// keySeparator joins tuple components in canonical form. Separator and
// escape bytes inside a component are escaped first, so a string key
// containing the separator cannot alias a different tuple.
const keySeparator = "\x1f"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

// KeyTuple is an ordered primary-key value tuple identifying one logical row.
type KeyTuple []interface{}

// Canonical returns a deterministic string form of the tuple, usable as
// a map key.
func (k KeyTuple) Canonical() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = keyEscaper.Replace(Canonical(v))
	}
	return strings.Join(parts, keySeparator)
}

// KeySet is a set of primary-key tuples. Membership is decided by
// canonical form, so equal values fetched through different drivers
// (e.g. int64 vs []byte("42")) land on the same key.
type KeySet struct {
	keys map[string]KeyTuple
}

// NewKeySet creates an empty key set.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]KeyTuple)}
}

// Add inserts a tuple into the set.
func (s *KeySet) Add(k KeyTuple) {
	s.keys[k.Canonical()] = k
}

// Contains reports whether the set holds a tuple equal to k.
func (s *KeySet) Contains(k KeyTuple) bool {
	_, ok := s.keys[k.Canonical()]
	return ok
}

// Len returns the number of tuples in the set.
func (s *KeySet) Len() int {
	return len(s.keys)
}

// Subtract returns the tuples present in s but not in other, ordered by
// canonical form for deterministic output.
func (s *KeySet) Subtract(other *KeySet) []KeyTuple {
	var out []KeyTuple
	for canon, tuple := range s.keys {
		if _, ok := other.keys[canon]; !ok {
			out = append(out, tuple)
		}
	}
	sortTuples(out)
	return out
}

// Intersect returns the tuples present in both sets, ordered by
// canonical form. Tuples are taken from s.
func (s *KeySet) Intersect(other *KeySet) []KeyTuple {
	var out []KeyTuple
	for canon, tuple := range s.keys {
		if _, ok := other.keys[canon]; ok {
			out = append(out, tuple)
		}
	}
	sortTuples(out)
	return out
}

func sortTuples(tuples []KeyTuple) {
	sort.Slice(tuples, func(i, j int) bool {
		return tuples[i].Canonical() < tuples[j].Canonical()
	})
}
