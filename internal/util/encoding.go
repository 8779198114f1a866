package util

import (
	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD so visually identical secrets typed on different
// platforms derive the same keys.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
