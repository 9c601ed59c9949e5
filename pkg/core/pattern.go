package core

import "strings"

// routerPattern rewrites ":name" segments into chi's "{name}" form. Other
// segments, including a trailing "*", pass through unchanged.
func routerPattern(p string) string {
	if !strings.Contains(p, ":") {
		return p
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if len(s) > 1 && s[0] == ':' {
			segs[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}
