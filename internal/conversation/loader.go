package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vokivo/backend/internal/models"
)

// LoadState tracks how much of a conversation is resident in memory.
type LoadState int

const (
	StateUnloaded LoadState = iota
	StateSummaryLoaded
	StateDetailLoaded
	StateHistoryExtended
	StatePolledUpdated
)

const (
	// DefaultContactLimit caps Tier-1 listings when the caller passes none.
	DefaultContactLimit = 50
	// DefaultHistoryLimit caps Tier-3 pages when the caller passes none.
	DefaultHistoryLimit = 50
)

// DetailResult is the Tier-2 response.
type DetailResult struct {
	Conversation   models.Conversation `json:"conversation"`
	HasMoreHistory bool                `json:"hasMoreHistory"`
	NextOffset     int                 `json:"nextOffset"`
}

// HistoryResult is one Tier-3 page of older records.
type HistoryResult struct {
	Calls          []models.NormalizedMessage `json:"calls"`
	SMSMessages    []models.NormalizedMessage `json:"smsMessages"`
	HasMoreHistory bool                       `json:"hasMoreHistory"`
	NextOffset     int                        `json:"nextOffset"`
}

// DeltaResult is an incremental fetch of records newer than a cursor.
type DeltaResult struct {
	NewCalls       []models.NormalizedMessage `json:"newCalls"`
	NewSMSMessages []models.NormalizedMessage `json:"newSMSMessages"`
	HasNewData     bool                       `json:"hasNewData"`
	LastTimestamp  time.Time                  `json:"lastTimestamp"`
}

// entry is the per-phone-number loader state. Its mutex serializes every
// mutation of the conversation so a delta merge cannot race a manual refresh.
type entry struct {
	mu       sync.Mutex
	state    LoadState
	conv     *models.Conversation
	lastSeen time.Time
	// anchor pins Tier-3 pagination to the earliest timestamp loaded at the
	// time of the first history request, so repeated pages are identical even
	// while newer records keep arriving.
	anchor  time.Time
	hasMore bool
}

// Loader runs the three-tier progressive fetch protocol for one authorized
// principal. All returned aggregates are copies; internal state is only
// mutated under the per-phone lock.
type Loader struct {
	source RecordSource
	scope  Scope
	agg    *Aggregator
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func NewLoader(source RecordSource, scope Scope, logger zerolog.Logger) *Loader {
	return &Loader{
		source:  source,
		scope:   scope,
		agg:     &Aggregator{Logger: logger},
		logger:  logger,
		entries: map[string]*entry{},
	}
}

func (l *Loader) Scope() Scope { return l.scope }

func (l *Loader) entryFor(phone string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[phone]
	if !ok {
		e = &entry{}
		l.entries[phone] = e
	}
	return e
}

// FetchContactList is Tier 1: a cheap scan returning contact headers sorted by
// recency. Calls and SMS are fetched in parallel; one failed channel degrades
// to the other, both failing is a connectivity error.
func (l *Loader) FetchContactList(ctx context.Context, limit int) ([]models.ContactSummary, error) {
	if limit <= 0 {
		limit = DefaultContactLimit
	}

	var (
		calls   []models.CallRecord
		sms     []models.SMSRecord
		callErr error
		smsErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		calls, callErr = l.source.ListCalls(gctx, CallQuery{
			AssistantIDs: l.scope.AssistantIDs,
			Limit:        limit * 10,
			Descending:   true,
		})
		return nil
	})
	g.Go(func() error {
		sms, smsErr = l.source.ListSMS(gctx, SMSQuery{
			UserID:     l.scope.UserID,
			Limit:      limit * 5,
			Descending: true,
		})
		return nil
	})
	_ = g.Wait()

	if callErr != nil && smsErr != nil {
		return []models.ContactSummary{}, callErr
	}
	if callErr != nil {
		l.logger.Warn().Err(callErr).Msg("contact list degraded to SMS only")
	}
	if smsErr != nil {
		l.logger.Warn().Err(smsErr).Msg("contact list degraded to calls only")
	}

	summaries := l.agg.BuildSummaries(l.scope, calls, sms, limit)
	for _, s := range summaries {
		e := l.entryFor(s.PhoneNumber)
		e.mu.Lock()
		if e.state == StateUnloaded {
			e.state = StateSummaryLoaded
		}
		e.mu.Unlock()
	}
	return summaries, nil
}

// FetchConversationDetails is Tier 2: the full aggregate for one phone
// number. A nil days loads the entire history; a finite days loads only the
// recent window and reports whether older history exists. The result always
// fully replaces any partial Tier-1 state. Tier 2 may be entered straight
// from Unloaded. When two fetches for the same phone race, whichever response
// arrives last wins.
func (l *Loader) FetchConversationDetails(ctx context.Context, phoneNumber string, days *int) (DetailResult, error) {
	var from *time.Time
	if days != nil && *days > 0 {
		t := time.Now().UTC().AddDate(0, 0, -*days)
		from = &t
	}

	var (
		calls   []models.CallRecord
		sms     []models.SMSRecord
		callErr error
		smsErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		calls, callErr = l.source.ListCalls(gctx, CallQuery{
			AssistantIDs: l.scope.AssistantIDs,
			PhoneNumber:  phoneNumber,
			From:         from,
		})
		return nil
	})
	g.Go(func() error {
		sms, smsErr = l.source.ListSMS(gctx, SMSQuery{
			UserID:      l.scope.UserID,
			PhoneNumber: phoneNumber,
			From:        from,
		})
		return nil
	})
	_ = g.Wait()
	if callErr != nil && smsErr != nil {
		return DetailResult{}, callErr
	}

	conv := l.agg.BuildConversation(l.scope, phoneNumber, calls, sms)

	hasMore := false
	if from != nil {
		nCalls, err := l.source.CountCallsBefore(ctx, l.scope.AssistantIDs, phoneNumber, *from)
		if err != nil {
			l.logger.Warn().Err(err).Msg("history count failed, assuming none")
		}
		nSMS, err := l.source.CountSMSBefore(ctx, l.scope.UserID, phoneNumber, *from)
		if err != nil {
			l.logger.Warn().Err(err).Msg("history count failed, assuming none")
		}
		hasMore = nCalls+nSMS > 0
	}

	e := l.entryFor(phoneNumber)
	e.mu.Lock()
	e.conv = &conv
	e.state = StateDetailLoaded
	e.hasMore = hasMore
	e.anchor = time.Time{}
	// Cursor primes from the loaded window; an empty shell stays cold.
	if conv.LastActivityTimestamp.After(e.lastSeen) {
		e.lastSeen = conv.LastActivityTimestamp
	}
	result := DetailResult{
		Conversation:   copyConversation(&conv),
		HasMoreHistory: hasMore,
	}
	e.mu.Unlock()
	return result, nil
}

// LoadConversationHistory is Tier 3: a page of records older than what was
// loaded first. Pages are pinned to an anchor timestamp, so the same offset
// returns the same page even while background writes land.
func (l *Loader) LoadConversationHistory(ctx context.Context, phoneNumber string, offset, limit int) (HistoryResult, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	e := l.entryFor(phoneNumber)
	e.mu.Lock()
	if e.conv == nil {
		e.mu.Unlock()
		return HistoryResult{}, ErrNotFound
	}
	if e.anchor.IsZero() {
		e.anchor = earliestTimestamp(e.conv)
		if e.anchor.IsZero() {
			e.anchor = time.Now().UTC()
		}
	}
	anchor := e.anchor
	e.mu.Unlock()

	var (
		calls   []models.CallRecord
		sms     []models.SMSRecord
		callErr error
		smsErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		calls, callErr = l.source.ListCalls(gctx, CallQuery{
			AssistantIDs: l.scope.AssistantIDs,
			PhoneNumber:  phoneNumber,
			Before:       &anchor,
			Limit:        limit,
			Offset:       offset,
			Descending:   true,
		})
		return nil
	})
	g.Go(func() error {
		sms, smsErr = l.source.ListSMS(gctx, SMSQuery{
			UserID:      l.scope.UserID,
			PhoneNumber: phoneNumber,
			Before:      &anchor,
			Limit:       limit,
			Offset:      offset,
			Descending:  true,
		})
		return nil
	})
	_ = g.Wait()
	if callErr != nil && smsErr != nil {
		return HistoryResult{}, callErr
	}

	// Exact: all pre-anchor records delivered so far per channel is
	// offset+len(page), so an exactly-full final page reports no more.
	nCalls, err := l.source.CountCallsBefore(ctx, l.scope.AssistantIDs, phoneNumber, anchor)
	if err != nil {
		l.logger.Warn().Err(err).Msg("history count failed, assuming none")
	}
	nSMS, err := l.source.CountSMSBefore(ctx, l.scope.UserID, phoneNumber, anchor)
	if err != nil {
		l.logger.Warn().Err(err).Msg("history count failed, assuming none")
	}

	result := HistoryResult{
		Calls:          normalizeCallPage(l.scope, calls, l.logger),
		SMSMessages:    normalizeSMSPage(l.scope, sms),
		HasMoreHistory: nCalls > offset+len(calls) || nSMS > offset+len(sms),
		NextOffset:     offset + limit,
	}

	e.mu.Lock()
	if e.conv != nil {
		l.agg.MergeRecords(e.conv, l.scope, calls, sms)
		e.state = StateHistoryExtended
		e.hasMore = result.HasMoreHistory
	}
	e.mu.Unlock()
	return result, nil
}

// FetchNewMessagesSince is the delta fetch: records strictly newer than the
// cursor across both channels. It does not mutate loader state; use
// PollConversation for fetch-and-merge.
func (l *Loader) FetchNewMessagesSince(ctx context.Context, phoneNumber string, since time.Time) (DeltaResult, error) {
	calls, sms, err := l.fetchSince(ctx, phoneNumber, since)
	if err != nil {
		return DeltaResult{}, err
	}
	return buildDelta(l.scope, calls, sms, l.logger), nil
}

// PollConversation runs one delta cycle: fetch newer records, append them to
// the live conversation, and advance the cursor to the newest received
// timestamp. The cursor is monotonic: a stale or empty response never moves
// it backwards. A phone number that was never detail-loaded is skipped.
func (l *Loader) PollConversation(ctx context.Context, phoneNumber string) (DeltaResult, error) {
	e := l.entryFor(phoneNumber)
	e.mu.Lock()
	since := e.lastSeen
	cold := e.conv == nil || since.IsZero()
	e.mu.Unlock()
	if cold {
		return DeltaResult{}, nil
	}

	calls, sms, err := l.fetchSince(ctx, phoneNumber, since)
	if err != nil {
		return DeltaResult{}, err
	}
	delta := buildDelta(l.scope, calls, sms, l.logger)

	e.mu.Lock()
	if e.conv != nil && delta.HasNewData {
		l.agg.MergeRecords(e.conv, l.scope, calls, sms)
		e.state = StatePolledUpdated
	}
	if delta.LastTimestamp.After(e.lastSeen) {
		e.lastSeen = delta.LastTimestamp
	}
	e.mu.Unlock()
	return delta, nil
}

// LastSeen reports the delta cursor for a phone number. ok is false for cold
// keys the poller must skip.
func (l *Loader) LastSeen(phoneNumber string) (time.Time, bool) {
	l.mu.Lock()
	e, exists := l.entries[phoneNumber]
	l.mu.Unlock()
	if !exists {
		return time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conv == nil || e.lastSeen.IsZero() {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// Conversation returns a snapshot copy of the live aggregate, if loaded.
func (l *Loader) Conversation(phoneNumber string) (models.Conversation, bool) {
	l.mu.Lock()
	e, exists := l.entries[phoneNumber]
	l.mu.Unlock()
	if !exists {
		return models.Conversation{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conv == nil {
		return models.Conversation{}, false
	}
	return copyConversation(e.conv), true
}

// State reports the loading state for a phone number.
func (l *Loader) State(phoneNumber string) LoadState {
	l.mu.Lock()
	e, exists := l.entries[phoneNumber]
	l.mu.Unlock()
	if !exists {
		return StateUnloaded
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (l *Loader) fetchSince(ctx context.Context, phoneNumber string, since time.Time) ([]models.CallRecord, []models.SMSRecord, error) {
	var (
		calls   []models.CallRecord
		sms     []models.SMSRecord
		callErr error
		smsErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		calls, callErr = l.source.ListCalls(gctx, CallQuery{
			AssistantIDs: l.scope.AssistantIDs,
			PhoneNumber:  phoneNumber,
			Since:        &since,
		})
		return nil
	})
	g.Go(func() error {
		sms, smsErr = l.source.ListSMS(gctx, SMSQuery{
			UserID:      l.scope.UserID,
			PhoneNumber: phoneNumber,
			Since:       &since,
		})
		return nil
	})
	_ = g.Wait()
	if callErr != nil && smsErr != nil {
		return nil, nil, callErr
	}
	return calls, sms, nil
}

func buildDelta(scope Scope, calls []models.CallRecord, sms []models.SMSRecord, logger zerolog.Logger) DeltaResult {
	delta := DeltaResult{
		NewCalls:       normalizeCallPage(scope, calls, logger),
		NewSMSMessages: normalizeSMSPage(scope, sms),
	}
	for _, m := range delta.NewCalls {
		if m.Timestamp.After(delta.LastTimestamp) {
			delta.LastTimestamp = m.Timestamp
		}
	}
	for _, m := range delta.NewSMSMessages {
		if m.Timestamp.After(delta.LastTimestamp) {
			delta.LastTimestamp = m.Timestamp
		}
	}
	delta.HasNewData = len(delta.NewCalls) > 0 || len(delta.NewSMSMessages) > 0
	return delta
}

func normalizeCallPage(scope Scope, calls []models.CallRecord, logger zerolog.Logger) []models.NormalizedMessage {
	out := make([]models.NormalizedMessage, 0, len(calls))
	for _, rec := range calls {
		if !scope.OwnsAssistant(rec.AssistantID) {
			logger.Debug().Str("assistant_id", rec.AssistantID).Msg("dropping call outside owned assistants")
			continue
		}
		out = append(out, NormalizeCall(rec))
	}
	sortMessages(out)
	return out
}

func normalizeSMSPage(scope Scope, sms []models.SMSRecord) []models.NormalizedMessage {
	out := make([]models.NormalizedMessage, 0, len(sms))
	for _, rec := range sms {
		if rec.UserID != scope.UserID {
			continue
		}
		out = append(out, NormalizeSMS(rec))
	}
	sortMessages(out)
	return out
}

func earliestTimestamp(conv *models.Conversation) time.Time {
	var earliest time.Time
	for _, m := range conv.Calls {
		if earliest.IsZero() || m.Timestamp.Before(earliest) {
			earliest = m.Timestamp
		}
	}
	for _, m := range conv.SMSMessages {
		if earliest.IsZero() || m.Timestamp.Before(earliest) {
			earliest = m.Timestamp
		}
	}
	return earliest
}

func copyConversation(conv *models.Conversation) models.Conversation {
	out := *conv
	out.Calls = append([]models.NormalizedMessage(nil), conv.Calls...)
	out.SMSMessages = append([]models.NormalizedMessage(nil), conv.SMSMessages...)
	return out
}
