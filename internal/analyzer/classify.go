package analyzer

import (
	"regexp"

	"github.com/adamavenir/cwthread/internal/types"
)

var (
	replyMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\breply\s*[:：]`),
		regexp.MustCompile(`返信\s*[:：]`),
		regexp.MustCompile(`\[返信\]`),
		regexp.MustCompile(`\[rp\s+aid=\d+`),
	}
	quoteMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bquote\s*[:：]`),
		regexp.MustCompile(`引用\s*[:：]`),
		regexp.MustCompile(`\[引用\]`),
		regexp.MustCompile(`\[qtmeta\s+aid=\d+`),
		regexp.MustCompile(`\[qt\]`),
	}
)

// Classify returns the kind of markup a message body uses. Reply markers take
// precedence over quote markers; bodies with neither are manual. Classify never
// returns RelationshipRoot.
func Classify(body string) types.RelationshipType {
	if matchesAny(replyMarkers, body) {
		return types.RelationshipReply
	}
	if matchesAny(quoteMarkers, body) {
		return types.RelationshipQuote
	}
	return types.RelationshipManual
}

func matchesAny(patterns []*regexp.Regexp, body string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(body) {
			return true
		}
	}
	return false
}
