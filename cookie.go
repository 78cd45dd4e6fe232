package roll

import (
	"fmt"
	"strings"
	"time"
)

// Cookie represents one RFC 6265 cookie, either parsed from an incoming
// Cookie header or set for emission as a Set-Cookie response header.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int // seconds; 0 means unset
	Secure   bool
	HTTPOnly bool
}

// CookieAttrs carries the optional attributes accepted by CookieJar.Set.
type CookieAttrs struct {
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HTTPOnly bool
}

// String serializes the cookie as a Set-Cookie header value per RFC 6265.
func (c *Cookie) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s", c.Name, c.Value)
	if c.Path != "" {
		fmt.Fprintf(&b, "; Path=%s", c.Path)
	}
	if c.Domain != "" {
		fmt.Fprintf(&b, "; Domain=%s", c.Domain)
	}
	if !c.Expires.IsZero() {
		fmt.Fprintf(&b, "; Expires=%s", c.Expires.UTC().Format(time.RFC1123))
	}
	if c.MaxAge != 0 {
		fmt.Fprintf(&b, "; Max-Age=%d", c.MaxAge)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

// CookieJar is an ordered set of cookies, keyed by name, used for both
// the parsed incoming Cookie header (Request.Cookies) and the outgoing
// Set-Cookie headers (Response.Cookies).
type CookieJar struct {
	order []string
	byName map[string]*Cookie
}

func newCookieJar() *CookieJar {
	return &CookieJar{byName: make(map[string]*Cookie)}
}

// Get returns the named cookie and whether it was present.
func (j *CookieJar) Get(name string) (*Cookie, bool) {
	c, ok := j.byName[name]
	return c, ok
}

// Set creates or replaces the named cookie.
func (j *CookieJar) Set(name, value string, attrs CookieAttrs) {
	if _, exists := j.byName[name]; !exists {
		j.order = append(j.order, name)
	}
	j.byName[name] = &Cookie{
		Name:     name,
		Value:    value,
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		Expires:  attrs.Expires,
		MaxAge:   attrs.MaxAge,
		Secure:   attrs.Secure,
		HTTPOnly: attrs.HTTPOnly,
	}
}

// Delete removes the named cookie, if present.
func (j *CookieJar) Delete(name string) {
	if _, exists := j.byName[name]; !exists {
		return
	}
	delete(j.byName, name)
	for i, n := range j.order {
		if n == name {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
}

// Len reports how many cookies are present.
func (j *CookieJar) Len() int { return len(j.order) }

// Each calls fn once per cookie in insertion order.
func (j *CookieJar) Each(fn func(*Cookie)) {
	for _, name := range j.order {
		fn(j.byName[name])
	}
}

// parseCookieHeader parses an RFC 6265 "Cookie:" request header value
// into a CookieJar. Malformed pairs are skipped rather than failing the
// whole parse, matching how real browsers send slightly-malformed jars.
func parseCookieHeader(header string) *CookieJar {
	jar := newCookieJar()
	if header == "" {
		return jar
	}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(part[:idx])
		value := strings.TrimSpace(part[idx+1:])
		if name == "" {
			continue
		}
		jar.Set(name, value, CookieAttrs{})
	}
	return jar
}
