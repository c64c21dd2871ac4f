package ingest

import (
	"strings"
)

// normalizeSpace collapses runs of whitespace and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitAndCleanList turns a bulleted or line-separated block into distinct
// entries.
func splitAndCleanList(block string) []string {
	block = strings.NewReplacer("\r\n", "\n", "\r", "\n", ";", "\n", "•", "\n").Replace(block)

	var out []string
	for _, raw := range strings.Split(block, "\n") {
		s := strings.TrimLeft(strings.TrimSpace(raw), " \t-*–—")
		s = normalizeSpace(stripLeadingNumbering(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return mergeUniqueFold(nil, out)
}

func stripLeadingNumbering(s string) string {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return s
	}
	return strings.TrimSpace(strings.TrimLeft(s[i:], ".)-: \t"))
}

// mergeUniqueFold appends items not already present, comparing
// case-insensitively.
func mergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		if k := strings.ToLower(strings.TrimSpace(v)); k != "" {
			seen[k] = struct{}{}
		}
	}
	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		dst = append(dst, v)
		seen[k] = struct{}{}
	}
	return dst
}
