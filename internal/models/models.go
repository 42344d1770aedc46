// Package models defines the core types shared across GroupSum components.
package models

import (
	"context"
	"time"
)

// Response represents an inbound message from a chat participant.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Receipt represents a delivery status update for an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// StatusType represents the delivery status of an outbound message.
type StatusType string

// Status constants for receipts.
const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
)

// Profile describes the remote account a user has signed in with.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Group identifies a group chat on the messaging platform.
type Group struct {
	JID  string `json:"jid"`
	Name string `json:"name"`
}

// Member identifies a participant of a group.
type Member struct {
	JID string `json:"jid"`
}

// GroupMessage is a single message retrieved from a group's recent history.
type GroupMessage struct {
	ID     string    `json:"id"`
	Sender string    `json:"sender"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// Authenticator opens remote-client connections on behalf of a user session.
// The returned client is exclusively owned by that session until Disconnect.
type Authenticator interface {
	Connect(ctx context.Context, sessionKey string) (RemoteClient, error)
}

// RemoteClient is an open connection to the messaging platform on behalf of
// one user. Authentication methods are valid before sign-in; directory
// methods require a completed sign-in.
type RemoteClient interface {
	// RequestCode triggers out-of-band delivery of a login code for the
	// given phone number and returns the code's identifier text.
	RequestCode(ctx context.Context, phone string) (string, error)

	// SignIn completes the login with the code the user received and
	// returns the authenticated account's profile.
	SignIn(ctx context.Context, phone, code string) (*Profile, error)

	// ResolveGroup looks up a joined group by name or JID.
	ResolveGroup(ctx context.Context, name string) (*Group, error)

	// ListMembers returns the group's current participants.
	ListMembers(ctx context.Context, group *Group) ([]Member, error)

	// RecentMessages returns up to limit recent messages from the group,
	// oldest of the retrieved window first.
	RecentMessages(ctx context.Context, group *Group, limit int) ([]GroupMessage, error)

	// Disconnect releases the connection. Best-effort and idempotent.
	Disconnect()
}

// Summarizer produces a natural-language summary of a block of text.
type Summarizer interface {
	Summarize(ctx context.Context, instruction, text string) (string, error)
}
