// Package sample provides a deterministic demo record source. It is opt-in
// via configuration and substitutes data only when the real store answered
// with an empty result, never when it failed.
package sample

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vokivo/backend/internal/conversation"
	"github.com/vokivo/backend/internal/models"
	"github.com/vokivo/backend/internal/utils"
)

// referenceTime anchors all generated activity so repeated runs and tests see
// identical data.
var referenceTime = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

var contacts = []struct {
	phone string
	name  string
}{
	{"+15550001001", "Sarah Mitchell"},
	{"+15550001002", "James Carter"},
	{"+15550001003", "Priya Nair"},
	{"+15550001004", "Miguel Alvarez"},
	{"+15550001005", "Dana Whitfield"},
	{"+15550001006", "Tom Okafor"},
}

var outcomes = []string{"Booked Appointment", "Qualified", "Not Qualified", "Completed", "Spam Call"}

var smsBodies = []string{
	"Hi, just confirming our appointment.",
	"Can you call me back this afternoon?",
	"Thanks, that works for me.",
	"What are your opening hours?",
	"Please remove me from your list.",
}

// Source generates deterministic call and SMS records. Generated calls adopt
// the first assistant id in the query scope and SMS adopt the querying user
// id, so demo data is always visible to the demo viewer.
type Source struct{}

func (s Source) ListCalls(ctx context.Context, q conversation.CallQuery) ([]models.CallRecord, error) {
	if len(q.AssistantIDs) == 0 {
		return nil, nil
	}
	var out []models.CallRecord
	for _, c := range contacts {
		if q.PhoneNumber != "" && q.PhoneNumber != c.phone {
			continue
		}
		for _, rec := range callsFor(c.phone, c.name, q.AssistantIDs[0]) {
			ts := rec.Timestamp()
			if q.Since != nil && !ts.After(*q.Since) {
				continue
			}
			if q.From != nil && ts.Before(*q.From) {
				continue
			}
			if q.Before != nil && !ts.Before(*q.Before) {
				continue
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Descending {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return page(out, q.Offset, q.Limit), nil
}

func (s Source) ListSMS(ctx context.Context, q conversation.SMSQuery) ([]models.SMSRecord, error) {
	if q.UserID == "" {
		return nil, nil
	}
	var out []models.SMSRecord
	for _, c := range contacts {
		if q.PhoneNumber != "" && q.PhoneNumber != c.phone {
			continue
		}
		for _, rec := range smsFor(c.phone, q.UserID) {
			if q.Since != nil && !rec.DateCreated.After(*q.Since) {
				continue
			}
			if q.From != nil && rec.DateCreated.Before(*q.From) {
				continue
			}
			if q.Before != nil && !rec.DateCreated.Before(*q.Before) {
				continue
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Descending {
			return out[i].DateCreated.After(out[j].DateCreated)
		}
		return out[i].DateCreated.Before(out[j].DateCreated)
	})
	return page(out, q.Offset, q.Limit), nil
}

func (s Source) CountCallsBefore(ctx context.Context, assistantIDs []string, phoneNumber string, before time.Time) (int, error) {
	calls, err := s.ListCalls(ctx, conversation.CallQuery{
		AssistantIDs: assistantIDs,
		PhoneNumber:  phoneNumber,
		Before:       &before,
	})
	return len(calls), err
}

func (s Source) CountSMSBefore(ctx context.Context, userID, phoneNumber string, before time.Time) (int, error) {
	sms, err := s.ListSMS(ctx, conversation.SMSQuery{
		UserID:      userID,
		PhoneNumber: phoneNumber,
		Before:      &before,
	})
	return len(sms), err
}

func callsFor(phone, name, assistantID string) []models.CallRecord {
	h := utils.HashStringToUint64(phone)
	n := 2 + int(h%3)
	out := make([]models.CallRecord, 0, n)
	for i := 0; i < n; i++ {
		start := referenceTime.Add(-time.Duration(i*36+int(h%24)) * time.Hour)
		duration := 45 + int((h/uint64(i+1))%240)
		rec := models.CallRecord{
			ID:           fmt.Sprintf("demo_call_%s_%d", phone[1:], i),
			CallID:       fmt.Sprintf("demo_call_%s_%d", phone[1:], i),
			CallSID:      fmt.Sprintf("CA%s%04d", phone[2:], i),
			AssistantID:  assistantID,
			PhoneNumber:  phone,
			StartTime:    start,
			EndTime:      start.Add(time.Duration(duration) * time.Second),
			DurationSecs: duration,
			Status:       "completed",
			Outcome:      outcomes[(h+uint64(i))%uint64(len(outcomes))],
			Transcript: []models.TranscriptEntry{
				{Role: "assistant", Content: "Hello, thanks for calling. How can I help you today?"},
				{Role: "user", Content: "Hi, I'd like some information about your service."},
			},
			CreatedAt: start,
			UpdatedAt: start,
		}
		if i == 0 {
			rec.StructuredData = map[string]any{"Customer Name": name}
		}
		out = append(out, rec)
	}
	return out
}

func smsFor(phone, userID string) []models.SMSRecord {
	h := utils.HashStringToUint64(phone)
	n := 1 + int((h/5)%4)
	out := make([]models.SMSRecord, 0, n)
	for i := 0; i < n; i++ {
		created := referenceTime.Add(-time.Duration(i*20+int((h/7)%18)) * time.Hour)
		rec := models.SMSRecord{
			MessageSID:  fmt.Sprintf("demo_sms_%s_%d", phone[1:], i),
			UserID:      userID,
			Body:        smsBodies[(h+uint64(i))%uint64(len(smsBodies))],
			Status:      "received",
			DateCreated: created,
			DateSent:    created,
		}
		if i%2 == 0 {
			rec.Direction = models.DirectionInbound
			rec.From = phone
			rec.To = "+15559990000"
		} else {
			rec.Direction = models.DirectionOutbound
			rec.From = "+15559990000"
			rec.To = phone
		}
		out = append(out, rec)
	}
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
