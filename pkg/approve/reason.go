package approve

import (
	"regexp"
	"strings"
)

// reasonRegex matches a description line carrying an auto-approve reason.
// The keyword is case-insensitive and may be indented; the captured
// remainder still needs trimming and may be empty.
var reasonRegex = regexp.MustCompile(`(?i)^[ \t]*auto-approve reason:(.*)$`)

// ExtractReason scans a pull request description for an auto-approve reason
// line and returns the reason with surrounding whitespace trimmed. The first
// keyword line decides: if its remainder is empty the result is "" even when
// a later line would match. Returns "" when the description has no reason.
func ExtractReason(body string) string {
	for _, line := range strings.Split(body, "\n") {
		match := reasonRegex.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
		if match == nil {
			continue
		}
		return strings.TrimSpace(match[1])
	}
	return ""
}

// blockedTerm returns the first blocklist term the pull request matches and
// where it matched ("title" or "label"), or empty strings when clean. Terms
// are expected pre-lowercased; they match the title as a substring and label
// names exactly, both case-insensitively. The title is checked first.
func blockedTerm(pr *PullRequest, terms []string) (term, where string) {
	title := strings.ToLower(pr.Title)
	for _, t := range terms {
		if strings.Contains(title, t) {
			return t, "title"
		}
	}
	for _, label := range pr.Labels {
		lower := strings.ToLower(label)
		for _, t := range terms {
			if lower == t {
				return t, "label"
			}
		}
	}
	return "", ""
}

// lowerTerms returns a lowercased copy of terms, dropping empties.
func lowerTerms(terms []string) []string {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	return lowered
}
