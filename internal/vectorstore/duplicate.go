package vectorstore

import "regexp"

var duplicateIDRegexp = regexp.MustCompile(duplicateIDPattern)

// ParseDuplicateIDs recovers offending document ids from an unstructured
// backend error message when the backend doesn't surface them
// structurally, per the design note on dynamic error-message parsing.
func ParseDuplicateIDs(msg string) []string {
	return duplicateIDRegexp.FindAllString(msg, -1)
}
