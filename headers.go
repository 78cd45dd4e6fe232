package roll

import "strings"

// Headers is a case-insensitive, order-preserving header collection.
// Per spec.md §3, keys are canonicalized to upper-case ASCII; Add merges
// repeated fields by concatenating values with ", " in arrival order,
// while Set replaces any existing value outright. Iteration order is
// insertion order, which the response serializer relies on (§4.6).
type Headers struct {
	order []string
	value map[string]string
}

func newHeaders() *Headers {
	return &Headers{value: make(map[string]string)}
}

func canonicalHeaderName(name string) string {
	return strings.ToUpper(name)
}

// Add appends value to any existing value for name, joined by ", ",
// matching §3's "repeated headers are merged in arrival order" invariant.
func (h *Headers) Add(name, value string) {
	key := canonicalHeaderName(name)
	if existing, ok := h.value[key]; ok {
		h.value[key] = existing + ", " + value
		return
	}
	h.order = append(h.order, key)
	h.value[key] = value
}

// Set replaces any existing value for name with value.
func (h *Headers) Set(name, value string) {
	key := canonicalHeaderName(name)
	if _, ok := h.value[key]; !ok {
		h.order = append(h.order, key)
	}
	h.value[key] = value
}

// SetDefault sets name to value only if name is not already present,
// used by the response writer for Content-Length/Transfer-Encoding.
func (h *Headers) SetDefault(name, value string) {
	key := canonicalHeaderName(name)
	if _, ok := h.value[key]; ok {
		return
	}
	h.Set(key, value)
}

// Get returns the (possibly comma-merged) value for name.
func (h *Headers) Get(name string) string {
	return h.value[canonicalHeaderName(name)]
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.value[canonicalHeaderName(name)]
	return ok
}

// Del removes name.
func (h *Headers) Del(name string) {
	key := canonicalHeaderName(name)
	if _, ok := h.value[key]; !ok {
		return
	}
	delete(h.value, key)
	for i, n := range h.order {
		if n == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Each calls fn once per header in insertion order.
func (h *Headers) Each(fn func(name, value string)) {
	for _, name := range h.order {
		fn(name, h.value[name])
	}
}

func (h *Headers) reset() {
	h.order = h.order[:0]
	for k := range h.value {
		delete(h.value, k)
	}
}
