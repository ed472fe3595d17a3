// Package autotx runs opt-in automatic transaction cycles: an active wallet
// periodically fans a portion of its balance out to a cohort of approved
// wallets, which return most of it after a settling delay.
package autotx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/ledgerrpc"
	"github.com/octwallet/octwallet/internal/notification"
	"github.com/octwallet/octwallet/internal/transfer"
	"github.com/octwallet/octwallet/internal/wallet"
)

var (
	// ErrNotApproved indicates the wallet has not opted in to auto transactions.
	ErrNotApproved = errors.New("wallet not approved for auto transactions")

	// ErrInsufficientBalance indicates the wallet cannot fund the cycle amount.
	ErrInsufficientBalance = errors.New("insufficient balance for auto transactions")

	// ErrAlreadyRunning indicates the wallet already has an active job.
	ErrAlreadyRunning = errors.New("auto transactions already running")

	// ErrNotRunning indicates there is no job to stop.
	ErrNotRunning = errors.New("auto transactions not running")

	// ErrCapacity indicates the engine is at its concurrent job ceiling.
	ErrCapacity = errors.New("auto transaction capacity reached")
)

// errEmptyCohort terminates a job: with no other approved wallets there is
// nothing to cycle with.
var errEmptyCohort = errors.New("no approved cohort wallets")

// shareFactor is applied twice per cycle: once when splitting the outbound
// amount across the cohort, and once more on each member's return leg.
var shareFactor = decimal.RequireFromString("0.95")

// Config carries the engine tunables. Zero values fall back to production
// defaults; tests shrink the delays.
type Config struct {
	CohortCap       int
	MaxActive       int           // ceiling on concurrently running jobs
	SettleDelay     time.Duration // between outbound fan-out and return legs
	ReturnSpacing   time.Duration // between individual return transfers
	CycleCooldown   time.Duration // after a completed cycle
	RetryCooldown   time.Duration // after a failed cycle
	DefaultDuration time.Duration // when the wallet has no stored duration
}

func (c Config) withDefaults() Config {
	if c.CohortCap <= 0 {
		c.CohortCap = 50
	}
	if c.MaxActive <= 0 {
		c.MaxActive = 100
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Minute
	}
	if c.ReturnSpacing <= 0 {
		c.ReturnSpacing = 2 * time.Second
	}
	if c.CycleCooldown <= 0 {
		c.CycleCooldown = 5 * time.Minute
	}
	if c.RetryCooldown <= 0 {
		c.RetryCooldown = 10 * time.Minute
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = time.Hour
	}
	return c
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns every running auto-transaction job.
type Engine struct {
	wallets   *wallet.Service
	transfers *transfer.Service
	ledger    ledgerrpc.Client
	notifier  notification.Notifier
	logger    *slog.Logger
	cfg       Config

	mu   sync.Mutex
	jobs map[string]*job
}

// NewEngine builds an engine. The notifier may be nil.
func NewEngine(wallets *wallet.Service, transfers *transfer.Service, ledger ledgerrpc.Client, notifier notification.Notifier, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		wallets:   wallets,
		transfers: transfers,
		ledger:    ledger,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		jobs:      make(map[string]*job),
	}
}

// Start activates auto transactions for a user. The amount is cycled each
// round; the job runs until the duration elapses or Stop is called.
func (e *Engine) Start(ctx context.Context, userID string, amount decimal.Decimal, duration time.Duration) error {
	w, err := e.wallets.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !w.AutoApproved {
		return ErrNotApproved
	}
	if !amount.IsPositive() {
		return fmt.Errorf("cycle amount must be positive, got %s", amount)
	}

	state, err := e.ledger.AccountState(ctx, w.Address)
	if err != nil {
		return fmt.Errorf("check balance: %w", err)
	}
	if state.Balance.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, state.Balance, amount)
	}

	if duration <= 0 {
		duration = w.AutoDuration
	}
	if duration <= 0 {
		duration = e.cfg.DefaultDuration
	}

	e.mu.Lock()
	if _, running := e.jobs[userID]; running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(e.jobs) >= e.cfg.MaxActive {
		e.mu.Unlock()
		return ErrCapacity
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	j := &job{cancel: cancel, done: make(chan struct{})}
	e.jobs[userID] = j
	e.mu.Unlock()

	now := time.Now().UTC()
	active := true
	if err := e.wallets.Update(ctx, userID, wallet.Patch{
		AutoActive:    &active,
		AutoAmount:    &amount,
		AutoDuration:  &duration,
		AutoStartedAt: &now,
	}); err != nil {
		e.removeJob(userID, j)
		cancel()
		close(j.done)
		return err
	}

	go e.run(jobCtx, j, userID, amount, now.Add(duration))
	return nil
}

// Stop cancels the user's job and marks the wallet inactive. Waits for the
// job goroutine to wind down.
func (e *Engine) Stop(ctx context.Context, userID string) error {
	e.mu.Lock()
	j, ok := e.jobs[userID]
	e.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	j.cancel()
	<-j.done

	return e.deactivate(ctx, userID)
}

// Status reports the auto-transaction state of a wallet.
type Status struct {
	Active    bool            `json:"active"`
	Running   bool            `json:"running"`
	Amount    decimal.Decimal `json:"amount"`
	Duration  time.Duration   `json:"duration"`
	StartedAt time.Time       `json:"started_at"`
	LastCycle time.Time       `json:"last_cycle"`
	EndsAt    time.Time       `json:"ends_at"`
}

// Status returns the persisted and live state for a user. Active reflects the
// stored flag; Running whether a job goroutine currently exists.
func (e *Engine) Status(ctx context.Context, userID string) (Status, error) {
	w, err := e.wallets.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	_, running := e.jobs[userID]
	e.mu.Unlock()

	s := Status{
		Active:    w.AutoActive,
		Running:   running,
		Amount:    w.AutoAmount,
		Duration:  w.AutoDuration,
		StartedAt: w.AutoStartedAt,
		LastCycle: w.LastAutoCycle,
	}
	if !w.AutoStartedAt.IsZero() && w.AutoDuration > 0 {
		s.EndsAt = w.AutoStartedAt.Add(w.AutoDuration)
	}
	return s, nil
}

// Shutdown cancels every job and waits for all of them to finish.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	jobs := make([]*job, 0, len(e.jobs))
	for _, j := range e.jobs {
		jobs = append(jobs, j)
	}
	e.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		<-j.done
	}
}

func (e *Engine) run(ctx context.Context, j *job, userID string, amount decimal.Decimal, deadline time.Time) {
	defer close(j.done)
	defer e.removeJob(userID, j)

	for {
		if !time.Now().Before(deadline) {
			e.logger.Info("auto cycle duration elapsed", "user_id", userID)
			e.deactivateAfterRun(userID)
			return
		}

		err := e.cycle(ctx, userID, amount)
		var wait time.Duration
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, errEmptyCohort):
			e.logger.Info("auto cycle terminated: cohort empty", "user_id", userID)
			e.deactivateAfterRun(userID)
			return
		case err != nil:
			e.logger.Error("auto cycle failed", "user_id", userID, "error", err)
			wait = e.cfg.RetryCooldown
		default:
			wait = e.cfg.CycleCooldown
		}

		if !sleep(ctx, wait) {
			return
		}
	}
}

// cycle performs one round: fan the amount out to the cohort, wait for
// settlement, then have every successful member return its share.
func (e *Engine) cycle(ctx context.Context, userID string, amount decimal.Decimal) error {
	owner, err := e.wallets.Get(ctx, userID)
	if err != nil {
		return err
	}

	cohort, err := e.wallets.ListAutoApproved(ctx, userID, e.cfg.CohortCap)
	if err != nil {
		return fmt.Errorf("load cohort: %w", err)
	}
	if len(cohort) == 0 {
		return errEmptyCohort
	}

	state, err := e.ledger.AccountState(ctx, owner.Address)
	if err != nil {
		return fmt.Errorf("check balance: %w", err)
	}
	if state.Balance.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, state.Balance, amount)
	}

	share := amount.Mul(shareFactor).Div(decimal.NewFromInt(int64(len(cohort)))).Round(6)
	if !share.IsPositive() {
		return fmt.Errorf("cycle amount %s too small for cohort of %d", amount, len(cohort))
	}

	recipients := make([]transfer.Recipient, 0, len(cohort))
	for _, member := range cohort {
		recipients = append(recipients, transfer.Recipient{Address: member.Address, Amount: share})
	}

	out, err := e.transfers.SendMulti(ctx, userID, recipients)
	if err != nil {
		return fmt.Errorf("outbound fan-out: %w", err)
	}
	if out.SuccessCount == 0 {
		return fmt.Errorf("outbound fan-out: all %d legs rejected", out.FailedCount)
	}
	e.logger.Info("auto cycle fan-out", "user_id", userID, "cohort", len(cohort), "accepted", out.SuccessCount, "rejected", out.FailedCount)

	if !sleep(ctx, e.cfg.SettleDelay) {
		return ctx.Err()
	}

	returnAmount := share.Mul(shareFactor).Round(6)
	returned := 0
	for i, member := range cohort {
		if !out.Results[i].Success {
			continue
		}
		if returned > 0 && !sleep(ctx, e.cfg.ReturnSpacing) {
			return ctx.Err()
		}
		if _, err := e.transfers.SendSingle(ctx, member.UserID, transfer.Recipient{Address: owner.Address, Amount: returnAmount}); err != nil {
			// A stuck return leg must not sink the cycle; the member keeps
			// the difference until the next round.
			e.logger.Warn("auto cycle return failed", "user_id", userID, "member", member.UserID, "error", err)
			continue
		}
		returned++
	}
	e.logger.Info("auto cycle complete", "user_id", userID, "returned", returned)

	now := time.Now().UTC()
	if err := e.wallets.Update(ctx, userID, wallet.Patch{LastAutoCycle: &now}); err != nil {
		e.logger.Error("record cycle timestamp", "user_id", userID, "error", err)
	}

	if e.notifier != nil {
		_ = e.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindAutoCycle,
			Destination: userID,
			Body:        fmt.Sprintf("Auto cycle complete: %d/%d wallets cycled %s OCT", out.SuccessCount, len(cohort), amount),
		})
	}
	return nil
}

// deactivateAfterRun clears the active flag from inside the job goroutine,
// where no caller context exists.
func (e *Engine) deactivateAfterRun(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.deactivate(ctx, userID); err != nil {
		e.logger.Error("deactivate auto transactions", "user_id", userID, "error", err)
	}
}

func (e *Engine) deactivate(ctx context.Context, userID string) error {
	inactive := false
	return e.wallets.Update(ctx, userID, wallet.Patch{AutoActive: &inactive})
}

func (e *Engine) removeJob(userID string, j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.jobs[userID] == j {
		delete(e.jobs, userID)
	}
}

// sleep waits for d, returning false when the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
