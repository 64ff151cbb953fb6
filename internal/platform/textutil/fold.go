package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var searchFolder = cases.Fold()

// FoldSearchTerm normalises user-supplied text for case and width insensitive
// prefix matching. Full-width characters collapse to their half-width
// equivalents before case folding.
func FoldSearchTerm(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return searchFolder.String(width.Fold.String(value))
}
