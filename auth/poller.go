package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/cookies"
)

// DefaultPollInterval matches the cadence the verification page has always
// used.
const DefaultPollInterval = 2 * time.Second

// VerificationProvider is the slice of the SDK the poller depends on.
type VerificationProvider interface {
	GetUser(ctx context.Context) (*client.User, error)
	Resend(ctx context.Context, otpType client.OTPType, email string) error
}

// PollerConfig tunes the verification loop. The zero value polls every
// DefaultPollInterval with no attempt limit and no backoff, which matches
// the default flow: the loop runs until confirmation or unmount.
type PollerConfig struct {
	// Interval between provider queries. Defaults to DefaultPollInterval.
	Interval time.Duration
	// MaxAttempts caps the number of queries; 0 means unlimited.
	MaxAttempts int
	// BackoffMultiplier stretches the interval after each attempt when > 1.
	BackoffMultiplier float64
	// MaxInterval caps the stretched interval; 0 means no cap.
	MaxInterval time.Duration
}

// Poller waits for an out-of-band email confirmation, performed possibly on
// another device, by querying the provider on an interval. There is no push
// channel for this flow: the emailed link is consumed against the provider
// directly, so the only way the waiting page learns about it is by asking.
type Poller struct {
	provider VerificationProvider
	store    *cookies.MemStore
	navigate Navigator
	cfg      PollerConfig
}

// NewPoller creates a Poller reading its pending email from store and
// navigating via navigate when the flow resolves.
func NewPoller(provider VerificationProvider, store *cookies.MemStore, navigate Navigator, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Poller{provider: provider, store: store, navigate: navigate, cfg: cfg}
}

// Run executes the verification loop until confirmation, attempt exhaustion,
// or ctx cancellation. Cancelling ctx is the unmount path and MUST happen
// when the waiting page goes away: it is what guarantees no timer outlives
// the flow and fires a navigation later.
//
// Behavior:
//   - No pending email in the store: navigate to signup immediately and
//     return ErrNoPendingVerification. No timer is started.
//   - Transient provider errors: ignored, retried next tick.
//   - Confirmation timestamp observed: stop, set the one-shot success flag
//     for the next page, navigate to login exactly once, return nil.
func (p *Poller) Run(ctx context.Context) error {
	email, ok := p.store.PendingVerificationEmail()
	if !ok {
		p.navigate(RouteSignup)
		return ErrNoPendingVerification
	}

	log.Debug().Str("email", email).Dur("interval", p.cfg.Interval).Msg("Starting verification poll")

	interval := p.cfg.Interval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		user, err := p.provider.GetUser(ctx)
		switch {
		case err != nil:
			// Transient by definition here; the authoritative outcome is
			// only ever the confirmation timestamp appearing.
			log.Debug().Err(err).Int("attempt", attempt).Msg("Verification poll failed, retrying")
		case user.Confirmed():
			p.store.ClearPendingVerification()
			p.store.MarkVerificationSuccess()
			p.navigate(RouteLogin)
			return nil
		}

		if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
			return ErrPollLimitReached
		}

		if p.cfg.BackoffMultiplier > 1 {
			interval = time.Duration(float64(interval) * p.cfg.BackoffMultiplier)
			if p.cfg.MaxInterval > 0 && interval > p.cfg.MaxInterval {
				interval = p.cfg.MaxInterval
			}
		}
		timer.Reset(interval)
	}
}

// Resend re-issues the verification email for the pending signup. It is
// independent of the polling loop; provider rejections are returned for
// direct display.
func (p *Poller) Resend(ctx context.Context) error {
	email, ok := p.store.PendingVerificationEmail()
	if !ok {
		return ErrNoPendingVerification
	}
	if err := p.provider.Resend(ctx, client.OTPTypeSignup, email); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}
	return nil
}
