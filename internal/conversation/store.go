// Package conversation persists chats so a question can be asked with the
// history of earlier exchanges. The store is a plain save/load collaborator;
// it has no part in generation.
package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation id is unknown.
var ErrNotFound = errors.New("conversation not found")

// Status of a stored exchange.
type Status string

const (
	StatusComplete    Status = "complete"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Exchange is one question with the answer it received.
type Exchange struct {
	Query    string
	Answer   string
	Passages []string
	Status   Status
}

// Conversation is an ordered list of exchanges.
type Conversation struct {
	ID        string
	Title     string
	Exchanges []Exchange
	UpdatedAt time.Time
}

// Summary lists a conversation without its exchanges.
type Summary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// Store saves and loads conversations.
type Store interface {
	// Create starts an empty conversation and returns it with a fresh id.
	Create(ctx context.Context, title string) (Conversation, error)
	// Load returns ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (Conversation, error)
	// Append adds an exchange to an existing conversation.
	Append(ctx context.Context, id string, ex Exchange) error
	Delete(ctx context.Context, id string) error
	// List returns summaries, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
}

// IsNotFound reports whether err indicates an unknown conversation.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
