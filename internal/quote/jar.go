package quote

import (
	"net/http"
	"strings"
)

// Jar accumulates cookies for a single session. Attributes such as expiry,
// path and domain are ignored: the whole session talks to one origin and
// lives for a few seconds. A Jar is not safe for concurrent use.
type Jar struct {
	order  []string
	values map[string]string
}

// NewJar creates an empty jar.
func NewJar() *Jar {
	return &Jar{values: make(map[string]string)}
}

// Ingest records every Set-Cookie value of h. A later cookie with the same
// name overwrites the earlier value but keeps its position.
func (j *Jar) Ingest(h http.Header) {
	for _, line := range h.Values("Set-Cookie") {
		j.add(line)
	}
}

func (j *Jar) add(line string) {
	pair, _, _ := strings.Cut(line, ";")
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return
	}
	if _, seen := j.values[name]; !seen {
		j.order = append(j.order, name)
	}
	j.values[name] = strings.TrimSpace(value)
}

// Header renders the jar as a Cookie header value, or "" when empty.
func (j *Jar) Header() string {
	if len(j.order) == 0 {
		return ""
	}
	parts := make([]string, 0, len(j.order))
	for _, name := range j.order {
		parts = append(parts, name+"="+j.values[name])
	}
	return strings.Join(parts, "; ")
}

// Len returns the number of distinct cookies.
func (j *Jar) Len() int {
	return len(j.order)
}
