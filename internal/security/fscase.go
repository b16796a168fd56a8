package security

import "runtime"

// Platforms whose default filesystem folds case. Containment checks must
// fold case there, or "FOO/../.." style lookups could slip past a
// case-sensitive comparison.
var caseInsensitiveGOOS = map[string]bool{
	"darwin":  true,
	"windows": true,
}

// CaseInsensitiveFS reports whether path comparison on this platform must
// be case-insensitive. Kept as the single platform check so the resolver
// stays free of GOOS conditionals.
func CaseInsensitiveFS() bool {
	return caseInsensitiveGOOS[runtime.GOOS]
}
