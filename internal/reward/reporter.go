package reward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"caosbot/internal/models"
	"caosbot/internal/store"
)

// MinimumRewardInterval is the shortest gap between two grants to one user
const MinimumRewardInterval = time.Second

var (
	ErrReportFailed  = errors.New("failed to report coins to backend")
	ErrBalanceFailed = errors.New("failed to get balance from backend")
)

// Backend is the external coins ledger
type Backend interface {
	ReportCoins(ctx context.Context, user models.User, amount int) (int, error)
	GetCoins(ctx context.Context, userID string) (int, error)
}

// Notifier announces a grant. Failures are logged by the reporter
type Notifier interface {
	NotifyReward(ctx context.Context, user models.User, amount int, reason string) error
}

// Receipt is the outcome of a report. Skipped reports never reached the
// backend and carry a zero balance
type Receipt struct {
	NewBalance int
	Skipped    bool
}

// Reporter sends coin grants to the backend, dropping duplicates for a user
// already in flight and grants closer than MinimumRewardInterval
type Reporter struct {
	backend     Backend
	store       store.Store
	notifier    Notifier
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewReporter creates a reporter throttled at MinimumRewardInterval. notifier may be nil
func NewReporter(backend Backend, st store.Store, notifier Notifier) *Reporter {
	return &Reporter{
		backend:     backend,
		store:       st,
		notifier:    notifier,
		minInterval: MinimumRewardInterval,
		now:         time.Now,
		inFlight:    make(map[string]struct{}),
	}
}

func (r *Reporter) acquire(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[userID]; busy {
		return false
	}
	r.inFlight[userID] = struct{}{}
	return true
}

func (r *Reporter) release(userID string) {
	r.mu.Lock()
	delete(r.inFlight, userID)
	r.mu.Unlock()
}

// Report sends amount for user to the backend. A user already in flight or
// granted less than minInterval ago gets a skipped receipt. Positive amounts
// stamp the grant time and are announced through the notifier
func (r *Reporter) Report(ctx context.Context, user models.User, amount int, reason string) (Receipt, error) {
	if !r.acquire(user.ID) {
		log.Info().Str("user", user.ID).Msg("concurrent reward report detected, ignoring")
		return Receipt{Skipped: true}, nil
	}
	defer r.release(user.ID)

	rec, _, err := r.store.Get(ctx, user.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	now := r.now()
	if rec.LastRewardGrantedAt != nil && now.Sub(*rec.LastRewardGrantedAt) < r.minInterval {
		log.Info().Str("user", user.ID).Msg("reward ignored (too soon)")
		return Receipt{Skipped: true}, nil
	}

	balance, err := r.backend.ReportCoins(ctx, user, amount)
	if err != nil {
		log.Error().Err(err).Str("user", user.ID).Int("amount", amount).Msg("error reporting coins")
		return Receipt{}, fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	log.Info().Str("user", user.ID).Int("amount", amount).Int("balance", balance).Str("reason", reason).Msg("coins reported")

	if amount > 0 {
		_, err := r.store.Update(ctx, user.ID, func(rec *models.UserRecord) error {
			t := now.UTC()
			rec.LastRewardGrantedAt = &t
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("user", user.ID).Msg("failed to record grant time")
		}
		if r.notifier != nil {
			if err := r.notifier.NotifyReward(ctx, user, amount, reason); err != nil {
				log.Error().Err(err).Str("user", user.ID).Msg("failed to notify reward")
			}
		}
	}

	return Receipt{NewBalance: balance}, nil
}

// Refund credits amount back to user bypassing the in-flight guard and the
// throttle. It does not stamp the grant time nor announce anything
func (r *Reporter) Refund(ctx context.Context, user models.User, amount int, reason string) (int, error) {
	balance, err := r.backend.ReportCoins(ctx, user, amount)
	if err != nil {
		log.Error().Err(err).Str("user", user.ID).Int("amount", amount).Str("reason", reason).Msg("error refunding coins")
		return 0, fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	log.Info().Str("user", user.ID).Int("amount", amount).Int("balance", balance).Str("reason", reason).Msg("coins refunded")
	return balance, nil
}

// GetCoins returns the user balance held by the backend
func (r *Reporter) GetCoins(ctx context.Context, userID string) (int, error) {
	balance, err := r.backend.GetCoins(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("error getting balance")
		return 0, fmt.Errorf("%w: %w", ErrBalanceFailed, err)
	}
	return balance, nil
}
