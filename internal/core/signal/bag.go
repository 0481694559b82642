// Package signal defines the flattened evidence extracted from a repository
// that feeds framework detection. This is part of the Functional Core.
package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// =============================================================================
// Signal Keys
// =============================================================================

// Signal keys are namespaced strings, e.g. "dependency:next",
// "file:Dockerfile", "envvar:DATABASE_URL".
const (
	PrefixDependency    = "dependency:"
	PrefixDevDependency = "devDependency:"
	PrefixScript        = "script:"
	PrefixFile          = "file:"
	PrefixDir           = "dir:"
	PrefixEnvVar        = "envvar:"
	PrefixManifest      = "manifest:"
)

// TrueValue is the value stored for boolean presence signals.
const TrueValue = "true"

// Dependency returns the signal key for a manifest dependency.
func Dependency(name string) string { return PrefixDependency + name }

// DevDependency returns the signal key for a dev dependency.
func DevDependency(name string) string { return PrefixDevDependency + name }

// Script returns the signal key for a manifest script entry.
func Script(name string) string { return PrefixScript + name }

// File returns the signal key for a file present at the repository root.
func File(name string) string { return PrefixFile + name }

// Dir returns the signal key for a top-level directory.
func Dir(name string) string { return PrefixDir + name }

// EnvVar returns the signal key for an environment variable hint.
func EnvVar(name string) string { return PrefixEnvVar + name }

// Manifest returns the signal key marking that a manifest was parsed.
func Manifest(name string) string { return PrefixManifest + name }

// =============================================================================
// Bag
// =============================================================================

// Bag is an immutable mapping from signal key to value, built once per
// analysis request. Caveats record non-fatal extraction problems (e.g. an
// unparseable manifest) that downstream consumers surface as recommendation
// caveats rather than errors.
type Bag struct {
	values  map[string]string
	caveats []string
}

// NewBag builds a bag from a value map and caveat list. Inputs are copied.
func NewBag(values map[string]string, caveats []string) Bag {
	v := make(map[string]string, len(values))
	for k, val := range values {
		v[k] = val
	}
	c := make([]string, len(caveats))
	copy(c, caveats)
	return Bag{values: v, caveats: c}
}

// Has reports whether a signal key is present.
func (b Bag) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// Get returns the value for a signal key.
func (b Bag) Get(key string) (string, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Len returns the number of signals in the bag.
func (b Bag) Len() int { return len(b.values) }

// Keys returns all signal keys in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Caveats returns extraction caveats recorded while the bag was built.
func (b Bag) Caveats() []string {
	c := make([]string, len(b.caveats))
	copy(c, b.caveats)
	return c
}

// Fingerprint returns a stable hash of the bag contents, usable as a cache
// key component alongside (repository id, commit sha).
func (b Bag) Fingerprint() string {
	h := sha256.New()
	for _, k := range b.Keys() {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(b.values[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// Builder
// =============================================================================

// Builder accumulates signals during extraction and produces an immutable Bag.
type Builder struct {
	values  map[string]string
	caveats []string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{values: make(map[string]string)}
}

// Set records a signal with an explicit value.
func (b *Builder) Set(key, value string) *Builder {
	b.values[key] = value
	return b
}

// Mark records a boolean presence signal.
func (b *Builder) Mark(key string) *Builder {
	b.values[key] = TrueValue
	return b
}

// Caveat records a non-fatal extraction problem.
func (b *Builder) Caveat(message string) *Builder {
	b.caveats = append(b.caveats, message)
	return b
}

// Build produces the immutable bag.
func (b *Builder) Build() Bag {
	return NewBag(b.values, b.caveats)
}
