package types

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when a message, thread or membership does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NewMessageNotFound builds a NotFoundError for a message id.
func NewMessageNotFound(messageID string) *NotFoundError {
	return &NotFoundError{Kind: "message", ID: messageID}
}

// NewThreadNotFound builds a NotFoundError for a thread reference.
func NewThreadNotFound(threadRef string) *NotFoundError {
	return &NotFoundError{Kind: "thread", ID: threadRef}
}

// MessageAlreadyExistsError is returned when a root message already belongs to threads.
type MessageAlreadyExistsError struct {
	MessageID string
	ThreadIDs []string
}

func (e *MessageAlreadyExistsError) Error() string {
	return fmt.Sprintf("message %s already exists in thread(s): %s", e.MessageID, strings.Join(e.ThreadIDs, ", "))
}

// AnalysisError wraps failures during fetch, expansion or persistence.
type AnalysisError struct {
	MessageID string
	Op        string
	Err       error
}

func (e *AnalysisError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (message %s): %v", e.Op, e.MessageID, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
