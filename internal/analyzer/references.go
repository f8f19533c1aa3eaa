package analyzer

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// ReplyTag matches [rp aid=123 to=456-789]. Group 1 is the referenced message id.
	ReplyTag = regexp.MustCompile(`\[rp\s+aid=\d+\s+to=\d+-(\d+)\]`)
	// QuoteMetaTag matches [qtmeta aid=123 time=1700000000] with an optional
	// to=456-789. Group 1 is the referenced message id, empty when to= is absent.
	QuoteMetaTag = regexp.MustCompile(`\[qtmeta\s+aid=\d+\s+time=\d+(?:\s+to=\d+-(\d+))?\]`)
)

// referencePatterns lists every marker that points at another message. The first
// capture group of each pattern is the referenced message id local to its room.
var referencePatterns = []*regexp.Regexp{
	// Labeled markers, English and Japanese. Ids may be typed with fullwidth digits.
	regexp.MustCompile(`(?i)\breply\s*[:：]\s*([0-9０-９]+)`),
	regexp.MustCompile(`返信\s*[:：]\s*([0-9０-９]+)`),
	regexp.MustCompile(`(?i)\bquote\s*[:：]\s*([0-9０-９]+)`),
	regexp.MustCompile(`引用\s*[:：]\s*([0-9０-９]+)`),
	ReplyTag,
	QuoteMetaTag,
	// rid456-789, as found in message permalinks.
	regexp.MustCompile(`rid\d+-(\d+)`),
	// Bare to=456-789 fragments.
	regexp.MustCompile(`to=\d+-(\d+)`),
}

// ExtractReferences returns the ids of every message referenced by body.
// The result is deduplicated and sorted; a body without markup yields an empty set.
func ExtractReferences(body string) []string {
	if body == "" {
		return nil
	}
	seen := map[string]struct{}{}
	for _, pattern := range referencePatterns {
		for _, match := range pattern.FindAllStringSubmatch(body, -1) {
			if len(match) < 2 || match[1] == "" {
				continue
			}
			seen[asciiDigits(match[1])] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// asciiDigits folds fullwidth digits (U+FF10..U+FF19) to their ASCII form.
func asciiDigits(id string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, id)
}
