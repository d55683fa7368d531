package transport

import (
	"context"
	"time"
)

// Priority selects which dispatcher queue a notification joins.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
)

func (p Priority) Valid() bool {
	return p == PriorityUrgent || p == PriorityNormal
}

// Notification is the payload handed to the send collaborator. Created by a
// producer, queued, sent at most once, then discarded; never persisted.
type Notification struct {
	ID         string         `json:"id"`
	Subject    string         `json:"subject_id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Priority   Priority       `json:"priority"`
	Data       map[string]any `json:"data,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Sender delivers one notification. Implementations own the delivery
// mechanics (push, chat message, in-app banner); the dispatcher only decides
// what, in what order, and whether now is allowed.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, n Notification) error

func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }
