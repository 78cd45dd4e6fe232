package roll

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// segmentKind identifies what a compiled pattern segment matches against
// one (or, for kindPath, all remaining) path segment(s).
type segmentKind int

const (
	kindLiteral segmentKind = iota
	kindPlain             // {name}: any single non-empty segment
	kindInt               // {name:int}: a single all-digit segment
	kindRegex             // {name:regex}: a single segment matching a custom regex
	kindPath              // {name:path}: the remainder of the path, slashes included
)

type segment struct {
	kind    segmentKind
	literal string
	name    string
	re      *regexp.Regexp
}

// compiledPattern is the result of compiling one path-pattern string
// ("/item/{id:int}") into matchable segments plus a specificity score
// used to rank overlapping routes (§4.4 "longest-specific-wins").
type compiledPattern struct {
	raw        string
	segments   []segment
	specificity int
}

var placeholderRe = regexp.MustCompile(`^\{([a-zA-Z_][a-zA-Z0-9_]*)(?::([a-zA-Z]+|.+))?\}$`)

// compilePattern parses a path-pattern string into a compiledPattern.
// Typed placeholders are {name}, {name:int}, {name:regex}, {name:path}.
// A {name:path} placeholder is only valid as the pattern's final segment,
// since it consumes the remainder of the URL path including slashes.
func compilePattern(pattern string) (*compiledPattern, error) {
	trimmed := strings.Trim(pattern, "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}

	cp := &compiledPattern{raw: pattern}
	for i, part := range parts {
		m := placeholderRe.FindStringSubmatch(part)
		if m == nil {
			cp.segments = append(cp.segments, segment{kind: kindLiteral, literal: part})
			cp.specificity += 3
			continue
		}
		name, typ := m[1], m[2]
		switch typ {
		case "", "str":
			cp.segments = append(cp.segments, segment{kind: kindPlain, name: name})
			cp.specificity += 1
		case "int":
			cp.segments = append(cp.segments, segment{kind: kindInt, name: name})
			cp.specificity += 2
		case "path":
			if i != len(parts)-1 {
				return nil, errors.New("roll: {name:path} placeholder must be the final pattern segment")
			}
			cp.segments = append(cp.segments, segment{kind: kindPath, name: name})
			// Deliberately the lowest specificity: it matches the most.
		default:
			re, err := regexp.Compile("^" + typ + "$")
			if err != nil {
				return nil, errors.New("roll: invalid regex placeholder {" + part + "}: " + err.Error())
			}
			cp.segments = append(cp.segments, segment{kind: kindRegex, name: name, re: re})
			cp.specificity += 2
		}
	}
	return cp, nil
}

// match attempts to match path against the compiled pattern, returning
// the extracted path variables on success.
func (cp *compiledPattern) match(path string) (map[string]string, bool) {
	trimmed := strings.Trim(path, "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}

	vars := make(map[string]string)
	for i, seg := range cp.segments {
		if seg.kind == kindPath {
			vars[seg.name] = strings.Join(parts[i:], "/")
			return vars, true
		}
		if i >= len(parts) {
			return nil, false
		}
		part := parts[i]
		switch seg.kind {
		case kindLiteral:
			if part != seg.literal {
				return nil, false
			}
		case kindPlain:
			vars[seg.name] = part
		case kindInt:
			if _, err := strconv.Atoi(part); err != nil {
				return nil, false
			}
			vars[seg.name] = part
		case kindRegex:
			if !seg.re.MatchString(part) {
				return nil, false
			}
			vars[seg.name] = part
		}
	}
	if len(parts) != len(cp.segments) {
		return nil, false
	}
	return vars, true
}

// fill substitutes named path variables back into the pattern, for
// Router.URLFor.
func (cp *compiledPattern) fill(params map[string]string) (string, error) {
	var b strings.Builder
	for _, seg := range cp.segments {
		b.WriteByte('/')
		switch seg.kind {
		case kindLiteral:
			b.WriteString(seg.literal)
		default:
			val, ok := params[seg.name]
			if !ok {
				return "", errors.New("roll: missing URL parameter '" + seg.name + "'")
			}
			b.WriteString(val)
		}
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}
