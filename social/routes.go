package social

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/query"
)

// Route is a shared ride. A route always has a sender (its creator); a
// non-nil ReceiverID means it was shared directly with that profile, and
// Public routes additionally appear in everyone's feed.
type Route struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	ReceiverID  *uuid.UUID `json:"receiver_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DistanceKM  float64    `json:"distance_km"`
	Public      bool       `json:"is_public"`
	CreatedAt   time.Time  `json:"created_at"`
	Sender      *Profile   `json:"sender,omitempty"` // Embedded on received routes and the feed
}

// Routes provides route sharing and dashboards.
type Routes struct {
	c *client.Client
}

// NewRoutes creates the routes service.
func NewRoutes(c *client.Client) *Routes {
	return &Routes{c: c}
}

// Share stores a new route. receiver may be nil for a feed-only route. The
// payload carries only caller-owned columns; id and created_at are assigned
// by the server.
func (r *Routes) Share(ctx context.Context, route *Route) (*Route, error) {
	row := map[string]any{
		"sender_id":   route.SenderID,
		"title":       route.Title,
		"description": route.Description,
		"distance_km": route.DistanceKM,
		"is_public":   route.Public,
	}
	if route.ReceiverID != nil {
		row["receiver_id"] = *route.ReceiverID
	}

	var created Route
	if err := r.c.From("routes").Insert(ctx, row, &created); err != nil {
		return nil, fmt.Errorf("share route: %w", err)
	}
	return &created, nil
}

// Own lists routes the user created, newest first.
func (r *Routes) Own(ctx context.Context, me uuid.UUID) ([]Route, error) {
	var routes []Route
	err := r.c.From("routes").
		Where(query.Eq("sender_id", me)).
		Order("created_at", true).
		Select(ctx, &routes)
	if err != nil {
		return nil, fmt.Errorf("own routes: %w", err)
	}
	return routes, nil
}

// Received lists routes shared directly with the user, with the sender
// profile embedded, newest first.
func (r *Routes) Received(ctx context.Context, me uuid.UUID) ([]Route, error) {
	var routes []Route
	err := r.c.From("routes").
		Where(query.Eq("receiver_id", me)).
		Embed("sender").
		Order("created_at", true).
		Select(ctx, &routes)
	if err != nil {
		return nil, fmt.Errorf("received routes: %w", err)
	}
	return routes, nil
}

// PublicFeed lists the newest public routes, capped at limit.
func (r *Routes) PublicFeed(ctx context.Context, limit int) ([]Route, error) {
	var routes []Route
	err := r.c.From("routes").
		Where(query.Eq("is_public", true)).
		Embed("sender").
		Order("created_at", true).
		Limit(limit).
		Select(ctx, &routes)
	if err != nil {
		return nil, fmt.Errorf("public feed: %w", err)
	}
	return routes, nil
}

// Delete removes a route the user created.
func (r *Routes) Delete(ctx context.Context, me, routeID uuid.UUID) error {
	err := r.c.From("routes").
		Where(query.Eq("id", routeID), query.Eq("sender_id", me)).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("delete route %s: %w", routeID, err)
	}
	return nil
}
