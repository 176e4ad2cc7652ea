// Package social implements the application's domain services over the
// provider SDK: profiles, friend requests, shared routes, and route
// messages. Each service is a thin, typed layer over the generic table
// interface; all filtering goes through typed predicates.
package social

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/query"
)

// Profile is the public face of an account. One-to-one with a user ID,
// created exactly once after signup. Username is immutable after creation.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Interests   []string  `json:"interests"`
	ColourTheme string    `json:"colour_theme"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileChanges holds the owner-mutable profile fields. Username is absent
// on purpose: it cannot be changed after creation. Nil fields are left
// untouched.
type ProfileChanges struct {
	Name        *string   `json:"name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Interests   *[]string `json:"interests,omitempty"`
	ColourTheme *string   `json:"colour_theme,omitempty"`
}

// Profiles provides profile lookup and mutation.
type Profiles struct {
	c *client.Client
}

// NewProfiles creates the profile service.
func NewProfiles(c *client.Client) *Profiles {
	return &Profiles{c: c}
}

// Create stores the profile for a freshly signed-up user. Called exactly
// once, after the account is confirmed. Timestamps are assigned by the
// server; the ID is the user's own and is sent explicitly.
func (p *Profiles) Create(ctx context.Context, profile *Profile) (*Profile, error) {
	interests := profile.Interests
	if interests == nil {
		interests = []string{}
	}
	colourTheme := profile.ColourTheme
	if colourTheme == "" {
		colourTheme = "light"
	}
	row := map[string]any{
		"id":           profile.ID,
		"name":         profile.Name,
		"username":     profile.Username,
		"avatar_url":   profile.AvatarURL,
		"interests":    interests,
		"colour_theme": colourTheme,
	}

	var created Profile
	if err := p.c.From("profiles").Insert(ctx, row, &created); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return &created, nil
}

// Get fetches a profile by user ID.
func (p *Profiles) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var profile Profile
	err := p.c.From("profiles").
		Where(query.Eq("id", id)).
		SelectOne(ctx, &profile)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return &profile, nil
}

// Update applies changes to the caller's own profile.
func (p *Profiles) Update(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*Profile, error) {
	var updated []Profile
	err := p.c.From("profiles").
		Where(query.Eq("id", id)).
		Update(ctx, changes, &updated)
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", id, err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("update profile %s: no matching profile", id)
	}
	return &updated[0], nil
}

// Search finds profiles whose username contains term, case-insensitively,
// excluding the searching user's own profile.
func (p *Profiles) Search(ctx context.Context, term string, self uuid.UUID) ([]Profile, error) {
	var profiles []Profile
	err := p.c.From("profiles").
		Where(
			query.ILike("username", "%"+term+"%"),
			query.Neq("id", self),
		).
		Order("username", false).
		Limit(25).
		Select(ctx, &profiles)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return profiles, nil
}
