package types

import "fmt"

// RelationshipType describes how a message belongs to a thread.
type RelationshipType string

const (
	RelationshipRoot   RelationshipType = "root"
	RelationshipReply  RelationshipType = "reply"
	RelationshipQuote  RelationshipType = "quote"
	RelationshipManual RelationshipType = "manual"
)

// Valid reports whether r is one of the known relationship types.
func (r RelationshipType) Valid() bool {
	switch r {
	case RelationshipRoot, RelationshipReply, RelationshipQuote, RelationshipManual:
		return true
	}
	return false
}

// ParseRelationshipType validates a user-supplied relationship type.
func ParseRelationshipType(value string) (RelationshipType, error) {
	rel := RelationshipType(value)
	if !rel.Valid() {
		return "", fmt.Errorf("invalid relationship type: %s (valid: root, reply, quote, manual)", value)
	}
	return rel, nil
}

// Message is a chat message fetched from a room. Treated as read-only once fetched.
type Message struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	SendTime   int64  `json:"send_time"`
	UpdateTime int64  `json:"update_time,omitempty"`
}

// MessageRef locates a message inside a room.
type MessageRef struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// Thread is a user-defined group of related messages.
type Thread struct {
	GUID        string  `json:"guid"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// ThreadMembership records membership of a message in a thread.
type ThreadMembership struct {
	ThreadGUID       string           `json:"thread_guid"`
	MessageID        string           `json:"message_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	AddedAt          int64            `json:"added_at"`
}

// ThreadMessage is a thread member joined with its cached message.
type ThreadMessage struct {
	Message
	RelationshipType RelationshipType `json:"relationship_type"`
	AddedAt          int64            `json:"added_at"`
}

// ThreadCheck reports which threads already own a message.
type ThreadCheck struct {
	Exists      bool     `json:"exists"`
	ThreadGUIDs []string `json:"thread_guids"`
}

// ThreadSort selects the ordering of thread listings.
type ThreadSort string

const (
	ThreadSortUpdated ThreadSort = "updated"
	ThreadSortCreated ThreadSort = "created"
	ThreadSortName    ThreadSort = "name"
)

// ThreadQueryOptions controls thread queries.
type ThreadQueryOptions struct {
	Search string
	Sort   ThreadSort
	Limit  int
}

// OptionalString represents a nullable string update.
type OptionalString struct {
	Set   bool
	Value *string
}

// ThreadSummary is a thread with its membership totals, used for listings.
type ThreadSummary struct {
	Thread
	MessageCount  int    `json:"message_count"`
	RootMessageID string `json:"root_message_id,omitempty"`
}
