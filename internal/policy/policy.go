package policy

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"strings"
	"sync"
)

//go:embed default_policy.txt
var defaultPolicy string

// Default returns the built-in memorial moderation policy.
func Default() string {
	return defaultPolicy
}

// Resolve returns override when it is supplied and non-blank, the default
// otherwise. The override replaces the default as a whole.
func Resolve(override *string) string {
	if override == nil || strings.TrimSpace(*override) == "" {
		return Default()
	}
	return *override
}

// Hash returns "sha256:<hex>" of the policy text.
func Hash(p string) string {
	h := sha256.Sum256([]byte(p))
	return "sha256:" + hex.EncodeToString(h[:])
}

// Handle is caller-held, editable policy state. It starts as the default
// and is never shared with the store.
type Handle struct {
	mu   sync.RWMutex
	text string
}

// NewHandle returns a handle holding the default policy.
func NewHandle() *Handle {
	return &Handle{text: Default()}
}

// Get returns the current policy text.
func (h *Handle) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.text
}

// Set replaces the current policy text.
func (h *Handle) Set(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.text = text
}

// Edited reports whether the handle differs from the default.
func (h *Handle) Edited() bool {
	return h.Get() != Default()
}

// Reset overwrites the handle with the default policy and returns it.
func Reset(current *Handle) string {
	p := Default()
	current.Set(p)
	return p
}
