package util

import "strings"

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeFilename replaces characters that are invalid in file or folder
// names on common filesystems with underscores.
func SanitizeFilename(s string) string {
	return filenameReplacer.Replace(s)
}

// FirstCharacter returns the first character of s as a string, handling
// multi-byte characters correctly. Returns "" for an empty string.
func FirstCharacter(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
