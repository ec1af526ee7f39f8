package cases

import (
	"fmt"
	"regexp"
)

var codePattern = regexp.MustCompile(`^INSP-(\d{4})-(\d{6,})$`)

// FormatCode renders the human reference for the seq-th case of year.
func FormatCode(year int, seq int64) string {
	return fmt.Sprintf("INSP-%04d-%06d", year, seq)
}

// ValidCode reports whether s looks like a reference produced by FormatCode.
func ValidCode(s string) bool { return codePattern.MatchString(s) }
