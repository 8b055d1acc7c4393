package nl2sql

import "strings"

// Normalize turns raw model output into a bare single-line SQL statement:
// code fences (with or without a language tag) are stripped, a leading bare
// "sql" token left behind by fence stripping is dropped, and all whitespace
// runs collapse to single spaces. A marker without a matching closing fence
// is deleted and the surrounding text kept. Total and idempotent; never
// returns a string containing a fence marker.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if end := strings.Index(body, "```"); end >= 0 {
			s = body[:end]
		}
	}
	s = strings.ReplaceAll(s, "```", "")

	fields := strings.Fields(s)
	for len(fields) > 0 && strings.EqualFold(fields[0], "sql") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}
