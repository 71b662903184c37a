package sample

import (
	"context"
	"time"

	"github.com/vokivo/backend/internal/conversation"
	"github.com/vokivo/backend/internal/models"
)

// FallbackSource substitutes demo records when the primary store succeeds
// with an empty result. Primary failures are passed through untouched so
// demo data never masks a genuine backend outage.
type FallbackSource struct {
	Primary  conversation.RecordSource
	Fallback conversation.RecordSource
}

func (f FallbackSource) ListCalls(ctx context.Context, q conversation.CallQuery) ([]models.CallRecord, error) {
	calls, err := f.Primary.ListCalls(ctx, q)
	if err != nil || len(calls) > 0 {
		return calls, err
	}
	return f.Fallback.ListCalls(ctx, q)
}

func (f FallbackSource) ListSMS(ctx context.Context, q conversation.SMSQuery) ([]models.SMSRecord, error) {
	sms, err := f.Primary.ListSMS(ctx, q)
	if err != nil || len(sms) > 0 {
		return sms, err
	}
	return f.Fallback.ListSMS(ctx, q)
}

func (f FallbackSource) CountCallsBefore(ctx context.Context, assistantIDs []string, phoneNumber string, before time.Time) (int, error) {
	n, err := f.Primary.CountCallsBefore(ctx, assistantIDs, phoneNumber, before)
	if err != nil || n > 0 {
		return n, err
	}
	return f.Fallback.CountCallsBefore(ctx, assistantIDs, phoneNumber, before)
}

func (f FallbackSource) CountSMSBefore(ctx context.Context, userID, phoneNumber string, before time.Time) (int, error) {
	n, err := f.Primary.CountSMSBefore(ctx, userID, phoneNumber, before)
	if err != nil || n > 0 {
		return n, err
	}
	return f.Fallback.CountSMSBefore(ctx, userID, phoneNumber, before)
}
