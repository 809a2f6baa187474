package models

import "time"

// Conversation identifies where a reply has to go.
type Conversation struct {
	ID      string // phone number/UUID for direct chats, group id for groups
	IsGroup bool
}

// InboundMessage is one chat message received from the transport.
type InboundMessage struct {
	Sender       string
	Text         string
	Conversation Conversation
	ReceivedAt   time.Time
}
