// Package band locates raster bands by matching their metadata against a
// descriptor of expected attribute values.
package band

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Pattern matches one metadata value. It is either a Literal or a Regex.
type Pattern interface {
	Match(value string) bool
	String() string
	isPattern()
}

// Literal matches when the value contains the literal text. Regular
// expression metacharacters such as the brackets in "[C]" have no meaning.
type Literal string

func (l Literal) Match(value string) bool { return strings.Contains(value, string(l)) }
func (l Literal) String() string          { return string(l) }
func (Literal) isPattern()                {}

// Regex matches when the expression finds a match anywhere in the value.
// Anchor with ^ and $ to require a full match.
type Regex struct {
	re *regexp.Regexp
}

// NewRegex compiles expr into a Regex pattern.
func NewRegex(expr string) (Regex, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Regex{}, fmt.Errorf("compile band pattern %q: %w", expr, err)
	}
	return Regex{re: re}, nil
}

// MustRegex is like NewRegex but panics on an invalid expression.
func MustRegex(expr string) Regex {
	r, err := NewRegex(expr)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Regex) Match(value string) bool { return r.re != nil && r.re.MatchString(value) }
func (r Regex) String() string {
	if r.re == nil {
		return ""
	}
	return r.re.String()
}
func (Regex) isPattern() {}

// Descriptor maps metadata keys to the pattern each value must satisfy.
type Descriptor map[string]Pattern

// Compile builds a Descriptor from plain attribute values. With regex set,
// every value is compiled as a regular expression; otherwise each is a Literal.
func Compile(attrs map[string]string, regex bool) (Descriptor, error) {
	d := make(Descriptor, len(attrs))
	for k, v := range attrs {
		if !regex {
			d[k] = Literal(v)
			continue
		}
		r, err := NewRegex(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		d[k] = r
	}
	return d, nil
}

// Matches reports whether every key is present in meta and every pattern
// matches its value.
func (d Descriptor) Matches(meta map[string]string) bool {
	for k, p := range d {
		v, ok := meta[k]
		if !ok || !p.Match(v) {
			return false
		}
	}
	return true
}

// Keys returns the descriptor keys in sorted order.
func (d Descriptor) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the descriptor deterministically, for logs.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%q", k, d[k].String())
	}
	b.WriteByte('}')
	return b.String()
}
