package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/models"
)

// CallQuery selects call records at the store boundary. AssistantIDs is the
// authorization scope: an empty set must yield an empty result, never an
// unscoped query.
type CallQuery struct {
	AssistantIDs []string
	PhoneNumber  string
	Since        *time.Time // exclusive lower bound (delta cursor)
	From         *time.Time // inclusive lower bound (recency window)
	Before       *time.Time // exclusive upper bound (history pages)
	Limit        int
	Offset       int
	Descending   bool
}

// SMSQuery selects SMS records scoped to one owning user.
type SMSQuery struct {
	UserID      string
	PhoneNumber string
	Since       *time.Time
	From        *time.Time
	Before      *time.Time
	Limit       int
	Offset      int
	Descending  bool
}

// RecordSource is the durable record store contract the engine reads from.
type RecordSource interface {
	ListCalls(ctx context.Context, q CallQuery) ([]models.CallRecord, error)
	ListSMS(ctx context.Context, q SMSQuery) ([]models.SMSRecord, error)
	CountCallsBefore(ctx context.Context, assistantIDs []string, phoneNumber string, before time.Time) (int, error)
	CountSMSBefore(ctx context.Context, userID, phoneNumber string, before time.Time) (int, error)
}

// RetryingSource wraps a RecordSource with a bounded per-call timeout and a
// small retry budget. Exhausted budgets fail closed as ErrConnectivity.
type RetryingSource struct {
	Inner   RecordSource
	Timeout time.Duration
	Retries int
	Logger  zerolog.Logger
}

func NewRetryingSource(inner RecordSource, timeout time.Duration, retries int, logger zerolog.Logger) *RetryingSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &RetryingSource{Inner: inner, Timeout: timeout, Retries: retries, Logger: logger}
}

func (r *RetryingSource) ListCalls(ctx context.Context, q CallQuery) ([]models.CallRecord, error) {
	var out []models.CallRecord
	err := r.attempt(ctx, "list_calls", func(ctx context.Context) error {
		var err error
		out, err = r.Inner.ListCalls(ctx, q)
		return err
	})
	return out, err
}

func (r *RetryingSource) ListSMS(ctx context.Context, q SMSQuery) ([]models.SMSRecord, error) {
	var out []models.SMSRecord
	err := r.attempt(ctx, "list_sms", func(ctx context.Context) error {
		var err error
		out, err = r.Inner.ListSMS(ctx, q)
		return err
	})
	return out, err
}

func (r *RetryingSource) CountCallsBefore(ctx context.Context, assistantIDs []string, phoneNumber string, before time.Time) (int, error) {
	var out int
	err := r.attempt(ctx, "count_calls", func(ctx context.Context) error {
		var err error
		out, err = r.Inner.CountCallsBefore(ctx, assistantIDs, phoneNumber, before)
		return err
	})
	return out, err
}

func (r *RetryingSource) CountSMSBefore(ctx context.Context, userID, phoneNumber string, before time.Time) (int, error) {
	var out int
	err := r.attempt(ctx, "count_sms", func(ctx context.Context) error {
		var err error
		out, err = r.Inner.CountSMSBefore(ctx, userID, phoneNumber, before)
		return err
	})
	return out, err
}

func (r *RetryingSource) attempt(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for i := 0; i <= r.Retries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.Logger.Warn().Err(err).Str("op", op).Int("attempt", i+1).Msg("record source query failed")
	}
	return fmt.Errorf("%w: %s: %v", ErrConnectivity, op, lastErr)
}
