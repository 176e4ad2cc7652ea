package social

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/query"
)

// Message is a comment attached to a shared route.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RouteID   uuid.UUID `json:"route_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Sender    *Profile  `json:"sender,omitempty"`
}

// Messages provides the per-route message thread.
type Messages struct {
	c *client.Client
}

// NewMessages creates the messages service.
func NewMessages(c *client.Client) *Messages {
	return &Messages{c: c}
}

// List returns the thread for a route, oldest first.
func (m *Messages) List(ctx context.Context, routeID uuid.UUID) ([]Message, error) {
	var messages []Message
	err := m.c.From("messages").
		Where(query.Eq("route_id", routeID)).
		Embed("sender").
		Order("created_at", false).
		Select(ctx, &messages)
	if err != nil {
		return nil, fmt.Errorf("route messages: %w", err)
	}
	return messages, nil
}

// Post appends a message to a route's thread.
func (m *Messages) Post(ctx context.Context, me, routeID uuid.UUID, body string) (*Message, error) {
	var created Message
	err := m.c.From("messages").Insert(ctx, map[string]any{
		"route_id":  routeID,
		"sender_id": me,
		"body":      body,
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	return &created, nil
}
