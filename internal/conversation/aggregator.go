package conversation

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/identity"
	"github.com/vokivo/backend/internal/models"
)

// Scope is the caller's authorized reach: call records must belong to an
// owned assistant, SMS records to the principal itself.
type Scope struct {
	UserID       string
	AssistantIDs []string
}

func (s Scope) OwnsAssistant(id string) bool {
	for _, a := range s.AssistantIDs {
		if a == id {
			return true
		}
	}
	return false
}

// Aggregator groups normalized messages into per-contact conversations. The
// grouping key is the phone number exactly as stored.
type Aggregator struct {
	Logger zerolog.Logger
}

// thread is the mutable per-phone accumulator used while grouping.
type thread struct {
	phone         string
	calls         []models.NormalizedMessage
	sms           []models.NormalizedMessage
	name          string
	nameAt        time.Time
	lastActivity  time.Time
	lastOutcomeAt time.Time
	lastOutcome   string
}

// BuildSummaries produces lightweight contact headers sorted by most recent
// activity, capped at limit. Records outside the scope are dropped silently,
// even though the store query was already scoped (defense in depth).
func (a *Aggregator) BuildSummaries(scope Scope, calls []models.CallRecord, sms []models.SMSRecord, limit int) []models.ContactSummary {
	threads := a.group(scope, calls, sms)

	summaries := make([]models.ContactSummary, 0, len(threads))
	for _, t := range threads {
		summaries = append(summaries, models.ContactSummary{
			ID:                    "contact_" + t.phone,
			PhoneNumber:           t.phone,
			DisplayName:           t.displayName(),
			LastActivityTimestamp: t.lastActivity,
			TotalCalls:            len(t.calls),
			TotalSMS:              len(t.sms),
			LastCallOutcome:       t.lastOutcome,
			TotalDuration:         TotalDuration(t.calls),
			Outcomes:              tallyOutcomes(t.calls),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastActivityTimestamp.Equal(summaries[j].LastActivityTimestamp) {
			return summaries[i].PhoneNumber < summaries[j].PhoneNumber
		}
		return summaries[i].LastActivityTimestamp.After(summaries[j].LastActivityTimestamp)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// BuildConversation assembles the full aggregate for one phone number. An
// empty record set yields a well-formed empty shell.
func (a *Aggregator) BuildConversation(scope Scope, phoneNumber string, calls []models.CallRecord, sms []models.SMSRecord) models.Conversation {
	conv := models.Conversation{
		ID:          "conv_" + phoneNumber,
		PhoneNumber: phoneNumber,
		DisplayName: identity.FormatPhoneNumber(phoneNumber),
		Calls:       []models.NormalizedMessage{},
		SMSMessages: []models.NormalizedMessage{},
	}
	a.MergeRecords(&conv, scope, calls, sms)
	return conv
}

// MergeRecords folds raw records into an existing conversation: scope-filter,
// normalize, de-duplicate by id, append, then restore every invariant with a
// full recompute. Used for initial load, history extension and delta merge
// alike.
func (a *Aggregator) MergeRecords(conv *models.Conversation, scope Scope, calls []models.CallRecord, sms []models.SMSRecord) int {
	seen := make(map[string]struct{}, len(conv.Calls)+len(conv.SMSMessages))
	for _, m := range conv.Calls {
		seen[m.ID] = struct{}{}
	}
	for _, m := range conv.SMSMessages {
		seen[m.ID] = struct{}{}
	}

	added := 0
	var bestName string
	var bestNameAt time.Time
	for _, rec := range calls {
		if rec.PhoneNumber != conv.PhoneNumber {
			continue
		}
		if !scope.OwnsAssistant(rec.AssistantID) {
			a.Logger.Debug().Str("assistant_id", rec.AssistantID).Msg("dropping call outside owned assistants")
			continue
		}
		msg := NormalizeCall(rec)
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		conv.Calls = append(conv.Calls, msg)
		added++
		if name, ok := identity.Resolve(rec.StructuredData, rec.PhoneNumber); ok && !msg.Timestamp.Before(bestNameAt) {
			bestName = name
			bestNameAt = msg.Timestamp
		}
	}
	for _, rec := range sms {
		if rec.ContactNumber() != conv.PhoneNumber {
			continue
		}
		if rec.UserID != scope.UserID {
			continue
		}
		msg := NormalizeSMS(rec)
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		conv.SMSMessages = append(conv.SMSMessages, msg)
		added++
	}

	// The name from the newest call wins, across merges: a history page must
	// not undo a name resolved from a more recent call.
	if bestName != "" && !bestNameAt.Before(conv.NameResolvedAt) {
		conv.DisplayName = bestName
		conv.NameResolvedAt = bestNameAt
	}
	Recompute(conv)
	return added
}

// Recompute restores the derived fields from the message arrays: ascending
// order with id tie-break, totals equal to array lengths, last activity equal
// to the max timestamp, and the outcome tally reclassified from scratch.
func Recompute(conv *models.Conversation) {
	sortMessages(conv.Calls)
	sortMessages(conv.SMSMessages)
	conv.TotalCalls = len(conv.Calls)
	conv.TotalSMS = len(conv.SMSMessages)
	conv.TotalDuration = TotalDuration(conv.Calls)
	conv.Outcomes = tallyOutcomes(conv.Calls)

	var last time.Time
	for _, m := range conv.Calls {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	for _, m := range conv.SMSMessages {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	conv.LastActivityTimestamp = last
}

func sortMessages(msgs []models.NormalizedMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

func tallyOutcomes(calls []models.NormalizedMessage) models.OutcomeTally {
	var tally models.OutcomeTally
	for _, c := range calls {
		text := c.Resolution
		if text == "" {
			text = c.Status
		}
		switch ClassifyOutcome(text) {
		case models.OutcomeAppointment:
			tally.Appointments++
		case models.OutcomeQualified:
			tally.Qualified++
		case models.OutcomeNotQualified:
			tally.NotQualified++
		case models.OutcomeSpam:
			tally.Spam++
		}
	}
	return tally
}

func (a *Aggregator) group(scope Scope, calls []models.CallRecord, sms []models.SMSRecord) map[string]*thread {
	threads := map[string]*thread{}
	at := func(phone string) *thread {
		t, ok := threads[phone]
		if !ok {
			t = &thread{phone: phone}
			threads[phone] = t
		}
		return t
	}

	for _, rec := range calls {
		if rec.PhoneNumber == "" {
			continue
		}
		if !scope.OwnsAssistant(rec.AssistantID) {
			a.Logger.Debug().Str("assistant_id", rec.AssistantID).Msg("dropping call outside owned assistants")
			continue
		}
		t := at(rec.PhoneNumber)
		msg := NormalizeCall(rec)
		t.calls = append(t.calls, msg)
		if msg.Timestamp.After(t.lastActivity) {
			t.lastActivity = msg.Timestamp
		}
		if msg.Timestamp.After(t.lastOutcomeAt) || t.lastOutcomeAt.IsZero() {
			t.lastOutcomeAt = msg.Timestamp
			t.lastOutcome = msg.Resolution
		}
		if name, ok := identity.Resolve(rec.StructuredData, rec.PhoneNumber); ok && !msg.Timestamp.Before(t.nameAt) {
			t.name = name
			t.nameAt = msg.Timestamp
		}
	}

	// Phone numbers with SMS but no calls still form a conversation.
	for _, rec := range sms {
		if rec.UserID != scope.UserID {
			continue
		}
		phone := rec.ContactNumber()
		if phone == "" {
			continue
		}
		t := at(phone)
		msg := NormalizeSMS(rec)
		t.sms = append(t.sms, msg)
		if msg.Timestamp.After(t.lastActivity) {
			t.lastActivity = msg.Timestamp
		}
	}
	return threads
}

func (t *thread) displayName() string {
	if t.name != "" {
		return t.name
	}
	return identity.FormatPhoneNumber(t.phone)
}
