package video

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/lock"
	"github.com/nexusgate/llmgateway/internal/store"
)

// PollLockName is the distributed lock name spec.md §4.7 names for the
// poller tick ("task_poller:video:lock"); TTL 60s as the spec requires.
const PollLockName = "task_poller:video:lock"

// PollLockTTL is the lock hold time for one poller tick.
const PollLockTTL = 60 * time.Second

// dueStatuses are the VideoTask statuses eligible for polling.
var dueStatuses = []store.VideoTaskStatus{
	store.VideoTaskSubmitted,
	store.VideoTaskQueued,
	store.VideoTaskProcessing,
}

// permanentErrorSubstrings mirrors spec.md §4.7's string-match set for
// classifying an upstream poll failure as non-retryable.
var permanentErrorSubstrings = []string{
	"not found", "404",
	"unauthorized", "401",
	"forbidden", "403",
	"invalid request", "invalid api key",
	"does not exist",
}

// PollHTTPError is raised by a Fetcher when the upstream status check
// returns a non-success HTTP status.
type PollHTTPError struct {
	Status  int
	Message string
}

func (e *PollHTTPError) Error() string { return e.Message }

// VideoPollContext is the plain data a Preparer hands to a Fetcher: every
// piece of state the HTTP phase needs, captured up front so the HTTP call
// never needs a database session open alongside it (spec.md §4.7 phase
// discipline).
type VideoPollContext struct {
	StatusURL string
	Headers   map[string]string
}

// PollOutcome is what a Fetcher learns from one upstream status check.
type PollOutcome struct {
	Done                 bool
	Status               store.VideoTaskStatus
	ProgressPercent      int
	VideoURL             string
	VideoURLs            []string
	VideoExpiresAt       *time.Time
	VideoDurationSeconds *float64
}

// Preparer resolves a due task's endpoint/key, decrypts the upstream
// credential, and builds the HTTP request context — all inside a brief DB
// session. Implementations live with the scheduler/store wiring; this
// package only orchestrates the three phases.
type Preparer func(ctx context.Context, task *store.VideoTask) (*VideoPollContext, error)

// Fetcher performs the upstream GET with no DB session held. It returns a
// *PollHTTPError (via errors.As) when the upstream responds with
// status >= 400, per spec.md §4.7 phase 2.
type Fetcher func(ctx context.Context, pollCtx *VideoPollContext) (*PollOutcome, error)

// Settler settles billing for a task that just reached a terminal state,
// called from inside the same update session that persists the outcome.
type Settler func(ctx context.Context, tx *gorm.DB, task *store.VideoTask) error

// Poller implements spec.md §4.7's polling tick.
type Poller struct {
	DB       *gorm.DB
	Prepare  Preparer
	Fetch    Fetcher
	Settle   Settler

	BatchSize    int
	BaseInterval time.Duration
}

// Tick selects due tasks under the distributed poll lock and polls each
// one. It returns nil if the lock could not be acquired (another instance
// is already ticking), matching spec.md §4.7's "at most one tick runs at
// a time" invariant.
func (p *Poller) Tick(ctx context.Context) error {
	err := lock.WithLock(ctx, PollLockName, PollLockTTL, func(ctx context.Context) error {
		return p.tickLocked(ctx)
	})
	if stderrors.Is(err, lock.ErrNotAcquired) {
		return nil
	}
	return err
}

func (p *Poller) tickLocked(ctx context.Context) error {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var tasks []store.VideoTask
	now := time.Now()
	err := p.DB.WithContext(ctx).
		Where("status IN ? AND next_poll_at <= ? AND poll_count < max_poll_count", dueStatuses, now).
		Order("next_poll_at asc").
		Limit(batchSize).
		Find(&tasks).Error
	if err != nil {
		return errors.Wrap(err, "select due video tasks")
	}

	for i := range tasks {
		if err := p.pollOne(ctx, &tasks[i]); err != nil {
			continue
		}
	}
	return nil
}

// pollOne runs the three phases of spec.md §4.7 for a single task.
func (p *Poller) pollOne(ctx context.Context, task *store.VideoTask) error {
	pollCtx, err := p.Prepare(ctx, task)
	if err != nil {
		return p.failPrepareError(ctx, task.ID, err)
	}

	outcome, fetchErr := p.Fetch(ctx, pollCtx)

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fresh store.VideoTask
		if err := tx.First(&fresh, task.ID).Error; err != nil {
			return errors.Wrap(err, "reload video task")
		}

		// Another tick may have already moved this task to a terminal
		// state; nothing left to do.
		if isTerminal(fresh.Status) {
			return nil
		}

		applyPollResult(&fresh, outcome, fetchErr, p.baseInterval())

		if err := tx.Save(&fresh).Error; err != nil {
			return errors.Wrap(err, "save polled video task")
		}

		if isTerminal(fresh.Status) && p.Settle != nil {
			if err := p.Settle(ctx, tx, &fresh); err != nil {
				return errors.Wrap(err, "settle video task billing")
			}
		}
		return nil
	})
}

// failPrepareError handles a configuration/state fault from phase 1
// (missing provider info, decryption failure): per spec.md §4.12 these
// kinds are not retried, so the task is marked failed directly.
func (p *Poller) failPrepareError(ctx context.Context, taskID int64, cause error) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fresh store.VideoTask
		if err := tx.First(&fresh, taskID).Error; err != nil {
			return errors.Wrap(err, "reload video task")
		}
		if isTerminal(fresh.Status) {
			return nil
		}

		fresh.Status = store.VideoTaskFailed
		fresh.PollCount++
		now := time.Now()
		fresh.CompletedAt = &now
		if fresh.RequestMetadata == nil {
			fresh.RequestMetadata = store.JSONColumn{}
		}
		fresh.RequestMetadata["poll_error"] = common.SanitizeErrorMessage(cause.Error())

		if err := tx.Save(&fresh).Error; err != nil {
			return errors.Wrap(err, "save failed video task")
		}
		if p.Settle != nil {
			if err := p.Settle(ctx, tx, &fresh); err != nil {
				return errors.Wrap(err, "settle failed video task")
			}
		}
		return nil
	})
}

func (p *Poller) baseInterval() time.Duration {
	if p.BaseInterval > 0 {
		return p.BaseInterval
	}
	return 5 * time.Second
}

// applyPollResult implements spec.md §4.7's backoff and termination rules.
func applyPollResult(task *store.VideoTask, outcome *PollOutcome, fetchErr error, base time.Duration) {
	task.PollCount++

	if fetchErr != nil {
		var httpErr *PollHTTPError
		if stderrors.As(fetchErr, &httpErr) && isPermanentPollError(httpErr.Status, httpErr.Message) {
			markFailed(task, httpErr.Message)
			return
		}
		backoff(task, base)
		checkPollTimeout(task)
		return
	}

	if outcome == nil {
		backoff(task, base)
		checkPollTimeout(task)
		return
	}

	if !outcome.Done {
		if outcome.Status != "" {
			task.Status = outcome.Status
		}
		task.ProgressPercent = outcome.ProgressPercent
		backoff(task, base)
		checkPollTimeout(task)
		return
	}

	task.ProgressPercent = 100
	task.VideoURL = outcome.VideoURL
	if len(outcome.VideoURLs) > 0 {
		list := make(store.JSONList, len(outcome.VideoURLs))
		for i, u := range outcome.VideoURLs {
			list[i] = u
		}
		task.VideoURLs = list
	}
	task.VideoExpiresAt = outcome.VideoExpiresAt
	task.VideoDurationSeconds = outcome.VideoDurationSeconds

	if outcome.Status == store.VideoTaskFailed {
		markFailed(task, "upstream reported failure")
		return
	}

	task.Status = store.VideoTaskCompleted
	now := time.Now()
	task.CompletedAt = &now
}

func markFailed(task *store.VideoTask, message string) {
	task.Status = store.VideoTaskFailed
	now := time.Now()
	task.CompletedAt = &now
	if task.RequestMetadata == nil {
		task.RequestMetadata = store.JSONColumn{}
	}
	task.RequestMetadata["poll_error"] = common.SanitizeErrorMessage(message)
}

// backoff applies next_poll_at = now + min(base * 2^min(retry_count, 5), 300s)
// and increments retry_count, per spec.md §4.7.
func backoff(task *store.VideoTask, base time.Duration) {
	exp := task.RetryCount
	if exp > 5 {
		exp = 5
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(exp)))
	if delay > 300*time.Second {
		delay = 300 * time.Second
	}
	task.NextPollAt = time.Now().Add(delay)
	task.RetryCount++
}

// checkPollTimeout fails the task with poll_timeout once poll_count
// reaches max_poll_count without the task having gone terminal.
func checkPollTimeout(task *store.VideoTask) {
	if task.MaxPollCount > 0 && task.PollCount >= task.MaxPollCount {
		markFailed(task, gatewayerr.PollTimeout().Error())
		task.Status = store.VideoTaskFailed
	}
}

func isTerminal(status store.VideoTaskStatus) bool {
	switch status {
	case store.VideoTaskCompleted, store.VideoTaskFailed, store.VideoTaskCancelled:
		return true
	default:
		return false
	}
}

// isPermanentPollError reports whether an upstream poll failure should
// terminate the task rather than be retried, per spec.md §4.7: any
// 4xx other than 429, or a message matching the known permanent phrases.
func isPermanentPollError(status int, message string) bool {
	if status >= 400 && status < 500 && status != 429 {
		return true
	}
	lower := strings.ToLower(message)
	for _, needle := range permanentErrorSubstrings {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
