package database

import (
	"encoding/json"
	"strings"
)

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableDate(d *Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// clearableID maps the 0 sentinel of a patch to NULL.
func clearableID(p *int64) *int64 {
	if p == nil || *p == 0 {
		return nil
	}
	return p
}

func joinLabels(labels []string) string {
	return strings.Join(cleanLabels(labels), ",")
}

func splitLabels(s string) []string {
	if s == "" {
		return []string{}
	}
	return cleanLabels(strings.Split(s, ","))
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(strings.ReplaceAll(l, ",", " "))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// snapshot serializes a record for an activity event. nil stays nil.
func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}

const (
	maxNameLength = 50
	maxNameCount  = 20
)

// SanitizeNames trims entries, drops blanks and duplicates, and caps both
// entry length and list size.
func SanitizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if r := []rune(n); len(r) > maxNameLength {
			n = string(r[:maxNameLength])
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		if len(out) == maxNameCount {
			break
		}
	}
	return out
}
