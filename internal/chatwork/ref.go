package chatwork

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adamavenir/cwthread/internal/types"
)

var (
	ridPattern     = regexp.MustCompile(`rid(\d+)-(\d+)`)
	numericPattern = regexp.MustCompile(`^\d+$`)
)

// ParseMessageRef accepts a message URL (https://www.chatwork.com/#!rid<room>-<msg>),
// a bare rid<room>-<msg> token, or a numeric message id paired with roomID.
// A room embedded in the reference wins over roomID. RoomID is left empty when
// neither supplies one.
func ParseMessageRef(ref, roomID string) (types.MessageRef, error) {
	value := strings.TrimSpace(ref)
	room := strings.TrimSpace(roomID)
	if value == "" {
		return types.MessageRef{}, fmt.Errorf("message reference cannot be empty")
	}
	if room != "" && !numericPattern.MatchString(room) {
		return types.MessageRef{}, fmt.Errorf("invalid room id: %s", roomID)
	}

	if match := ridPattern.FindStringSubmatch(value); match != nil {
		return types.MessageRef{RoomID: match[1], MessageID: match[2]}, nil
	}
	if numericPattern.MatchString(value) {
		return types.MessageRef{RoomID: room, MessageID: value}, nil
	}
	return types.MessageRef{}, fmt.Errorf("invalid message reference: %s (expected message id or https://www.chatwork.com/#!rid<room>-<message>)", ref)
}

// MessageURL returns the web link of a message.
func MessageURL(roomID, messageID string) string {
	return fmt.Sprintf("https://www.chatwork.com/#!rid%s-%s", roomID, messageID)
}
