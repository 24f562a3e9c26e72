package clues

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// directiveSep separates a pattern from its trailing directives, e.g. `Apache/([\d.]+)\;version:\1`.
const directiveSep = `\;`

var ternaryTemplate = regexp.MustCompile(`\\(\d+)\?([^:]*):(.*)$`)

// Pattern is a single compiled matcher scoped to one signal kind.
type Pattern struct {
	Kind model.SignalKind
	// Key is the header, cookie or meta name the pattern applies to (lowercase).
	// It is empty for list-valued kinds such as html, script and url.
	Key        string
	Raw        string
	Regex      *regexp.Regexp
	Version    string // version template, e.g. `\1` or `$1`
	Confidence int

	presence bool
}

// parsePattern splits raw into regex and directives and compiles the regex case-insensitively.
func parsePattern(kind model.SignalKind, key, raw string) (*Pattern, error) {
	parts := strings.Split(raw, directiveSep)
	p := &Pattern{
		Kind:       kind,
		Key:        strings.ToLower(strings.TrimSpace(key)),
		Raw:        raw,
		Confidence: 100,
	}

	for _, part := range parts[1:] {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed directive %q", part)
		}
		switch strings.TrimSpace(name) {
		case "version":
			p.Version = value
		case "confidence":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 || n > 100 {
				return nil, fmt.Errorf("invalid confidence %q", value)
			}
			p.Confidence = n
		default:
			return nil, fmt.Errorf("unknown directive %q", name)
		}
	}

	re, err := regexp.Compile("(?i)" + parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", parts[0], err)
	}
	p.Regex = re
	p.presence = p.Key != "" && parts[0] == "" && p.Version == ""
	return p, nil
}

// Presence reports whether the pattern only requires its header, cookie or meta key to exist.
func (p *Pattern) Presence() bool {
	return p.presence
}

// Eval matches value against the pattern. The returned version is empty when the pattern
// has no version template or a referenced group captured nothing.
func (p *Pattern) Eval(value string) (bool, string) {
	groups := p.Regex.FindStringSubmatch(value)
	if groups == nil {
		return false, ""
	}
	return true, expandVersion(p.Version, groups)
}

// expandVersion substitutes \N and $N group references in tmpl. A trailing `\N?a:b` ternary picks a
// when group N captured something and b otherwise.
func expandVersion(tmpl string, groups []string) string {
	if tmpl == "" {
		return ""
	}

	if m := ternaryTemplate.FindStringSubmatch(tmpl); m != nil {
		idx, _ := strconv.Atoi(m[1])
		replacement := m[3]
		if idx < len(groups) && groups[idx] != "" {
			replacement = m[2]
		}
		tmpl = strings.TrimSuffix(tmpl, m[0]) + replacement
	}

	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if (c != '\\' && c != '$') || i+1 >= len(tmpl) || !isDigit(tmpl[i+1]) {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(tmpl) && isDigit(tmpl[j]) {
			j++
		}
		idx, _ := strconv.Atoi(tmpl[i+1 : j])
		if idx >= len(groups) || groups[idx] == "" {
			return ""
		}
		b.WriteString(groups[idx])
		i = j - 1
	}
	return strings.TrimSpace(b.String())
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// stripDirectives returns the bare value of an entry such as `PHP\;confidence:50`.
func stripDirectives(raw string) string {
	name, _, _ := strings.Cut(raw, directiveSep)
	return strings.TrimSpace(name)
}
