package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/query"
)

// Friend request statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// ErrDuplicateRequest is returned when a request already exists between the
// two profiles, in either direction.
var ErrDuplicateRequest = errors.New("friend request already exists")

// FriendRequest is a directed edge between two profiles. At most one request
// exists per unordered pair; the server enforces this with a unique index,
// and Send pre-checks it for a friendlier error.
type FriendRequest struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Sender     *Profile  `json:"sender,omitempty"` // Embedded on received requests
}

// FriendsOverview groups the three lists the friends page renders.
type FriendsOverview struct {
	Incoming []FriendRequest // Pending requests addressed to the user
	Outgoing []FriendRequest // Pending requests the user has sent
	Accepted []FriendRequest // Established friendships, either direction
}

// Friends provides friend-request operations.
type Friends struct {
	c *client.Client
}

// NewFriends creates the friends service.
func NewFriends(c *client.Client) *Friends {
	return &Friends{c: c}
}

// Overview fetches everything the friends page needs in three queries.
func (f *Friends) Overview(ctx context.Context, me uuid.UUID) (*FriendsOverview, error) {
	overview := &FriendsOverview{}

	err := f.c.From("friend_requests").
		Where(query.Eq("receiver_id", me), query.Eq("status", RequestPending)).
		Embed("sender").
		Order("created_at", true).
		Select(ctx, &overview.Incoming)
	if err != nil {
		return nil, fmt.Errorf("incoming requests: %w", err)
	}

	err = f.c.From("friend_requests").
		Where(query.Eq("sender_id", me), query.Eq("status", RequestPending)).
		Order("created_at", true).
		Select(ctx, &overview.Outgoing)
	if err != nil {
		return nil, fmt.Errorf("outgoing requests: %w", err)
	}

	err = f.c.From("friend_requests").
		Where(
			query.Eq("status", RequestAccepted),
			query.Or(query.Eq("sender_id", me), query.Eq("receiver_id", me)),
		).
		Order("created_at", true).
		Select(ctx, &overview.Accepted)
	if err != nil {
		return nil, fmt.Errorf("accepted requests: %w", err)
	}

	return overview, nil
}

// Send creates a friend request from me to receiver. If any request already
// exists between the pair, in either direction, ErrDuplicateRequest is
// returned and nothing is inserted. The pre-check gives a friendly error for
// the common case; the server's unique index closes the race two concurrent
// sends would otherwise win together.
func (f *Friends) Send(ctx context.Context, me, receiver uuid.UUID) (*FriendRequest, error) {
	var existing []FriendRequest
	err := f.c.From("friend_requests").
		Where(query.Or(
			query.And(query.Eq("sender_id", me), query.Eq("receiver_id", receiver)),
			query.And(query.Eq("sender_id", receiver), query.Eq("receiver_id", me)),
		)).
		Limit(1).
		Select(ctx, &existing)
	if err != nil {
		return nil, fmt.Errorf("check existing request: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrDuplicateRequest
	}

	var created FriendRequest
	err = f.c.From("friend_requests").Insert(ctx, map[string]any{
		"sender_id":   me,
		"receiver_id": receiver,
		"status":      RequestPending,
	}, &created)
	if err != nil {
		if client.IsConflict(err) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("send friend request: %w", err)
	}
	return &created, nil
}

// Accept marks a pending request addressed to me as accepted.
func (f *Friends) Accept(ctx context.Context, me, requestID uuid.UUID) error {
	return f.setStatus(ctx, me, requestID, RequestAccepted)
}

// Reject marks a pending request addressed to me as rejected.
func (f *Friends) Reject(ctx context.Context, me, requestID uuid.UUID) error {
	return f.setStatus(ctx, me, requestID, RequestRejected)
}

func (f *Friends) setStatus(ctx context.Context, me, requestID uuid.UUID, status string) error {
	err := f.c.From("friend_requests").
		Where(query.Eq("id", requestID), query.Eq("receiver_id", me)).
		Update(ctx, map[string]any{"status": status}, nil)
	if err != nil {
		return fmt.Errorf("%s friend request %s: %w", status, requestID, err)
	}
	return nil
}

// Cancel deletes a pending request I sent. The row is removed, not marked:
// a cancelled request leaves no trace and the pair may try again.
func (f *Friends) Cancel(ctx context.Context, me, requestID uuid.UUID) error {
	err := f.c.From("friend_requests").
		Where(query.Eq("id", requestID), query.Eq("sender_id", me)).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("cancel friend request %s: %w", requestID, err)
	}
	return nil
}
