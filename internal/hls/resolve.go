package hls

import "strings"

// ResolveURI resolves a variant or segment reference against the URL it was
// fetched from. Absolute references (starting with "http") are kept verbatim;
// relative ones replace the basename of the base URL, everything after the
// last "/".
func ResolveURI(base, ref string) string {
	if ref == "" {
		return base
	}
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	idx := strings.LastIndex(base, "/")
	if idx < 0 {
		return ref
	}
	return base[:idx+1] + ref
}
