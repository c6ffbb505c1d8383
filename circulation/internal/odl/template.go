package odl

import (
	"net/url"
	"strings"
)

// ExpandTemplate expands the subset of URI templates (RFC 6570 level 1 plus
// the {?var,...} query form) that ODL checkout links use. Unknown variables
// expand to nothing.
func ExpandTemplate(template string, vars map[string]string) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		expr := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		if strings.HasPrefix(expr, "?") || strings.HasPrefix(expr, "&") {
			sep := byte('?')
			if expr[0] == '&' || strings.Contains(b.String(), "?") {
				sep = '&'
			}
			names := strings.Split(expr[1:], ",")
			first := true
			for _, name := range names {
				v, ok := vars[name]
				if !ok {
					continue
				}
				if first {
					b.WriteByte(sep)
					first = false
				} else {
					b.WriteByte('&')
				}
				b.WriteString(name)
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
			continue
		}

		// Simple {var} expansion.
		if v, ok := vars[expr]; ok {
			b.WriteString(url.PathEscape(v))
		}
	}
	return b.String()
}
