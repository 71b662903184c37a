package models

import "time"

// Message direction values shared by calls and SMS.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message type discriminator for NormalizedMessage.
const (
	MessageTypeCall = "call"
	MessageTypeSMS  = "sms"
)

// Call outcome classes derived from resolution/status text.
const (
	OutcomeAppointment  = "appointment"
	OutcomeQualified    = "qualified"
	OutcomeNotQualified = "not_qualified"
	OutcomeSpam         = "spam"
	OutcomeUnknown      = "unknown"
)

// TranscriptEntry is a raw role-tagged turn as stored by the call provider.
// Content is free-form: a string, an array of strings, or anything else the
// provider decided to send.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Time    string `json:"time,omitempty"`
}

// TranscriptTurn is a normalized transcript turn with a display speaker label.
type TranscriptTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Time    string `json:"time,omitempty"`
}

// CallRecord is a raw voice call row from the durable store.
type CallRecord struct {
	ID             string            `json:"id"`
	CallID         string            `json:"call_id"`
	CallSID        string            `json:"call_sid,omitempty"`
	AssistantID    string            `json:"assistant_id"`
	PhoneNumber    string            `json:"phone_number"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	DurationSecs   int               `json:"call_duration"`
	Status         string            `json:"call_status"`
	Outcome        string            `json:"call_outcome,omitempty"`
	Transcript     []TranscriptEntry `json:"transcription,omitempty"`
	RecordingSID   string            `json:"recording_sid,omitempty"`
	StructuredData map[string]any    `json:"structured_data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Timestamp is the canonical event time of the call.
func (c CallRecord) Timestamp() time.Time {
	if !c.StartTime.IsZero() {
		return c.StartTime
	}
	return c.CreatedAt
}

// SMSRecord is a raw text message row from the durable store.
type SMSRecord struct {
	MessageSID  string    `json:"messageSid"`
	UserID      string    `json:"user_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Direction   string    `json:"direction"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"dateCreated"`
	DateSent    time.Time `json:"dateSent,omitempty"`
}

// ContactNumber is the phone number of the remote party: the sender for
// inbound messages, the recipient for outbound ones.
func (s SMSRecord) ContactNumber() string {
	if s.Direction == DirectionInbound {
		return s.From
	}
	return s.To
}

// NormalizedMessage is the unified call/SMS shape used inside conversations.
type NormalizedMessage struct {
	Type         string           `json:"type"`
	ID           string           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Direction    string           `json:"direction"`
	Duration     string           `json:"duration,omitempty"`
	DurationSecs int              `json:"durationSeconds,omitempty"`
	Status       string           `json:"status,omitempty"`
	Resolution   string           `json:"resolution,omitempty"`
	Body         string           `json:"body,omitempty"`
	Transcript   []TranscriptTurn `json:"transcript,omitempty"`
	RecordingSID string           `json:"recordingSid,omitempty"`
	AssistantID  string           `json:"-"`
}

// OutcomeTally counts call outcomes within a conversation. It is always
// recomputed from the calls array, never incrementally merged.
type OutcomeTally struct {
	Appointments int `json:"appointments"`
	Qualified    int `json:"qualified"`
	NotQualified int `json:"notQualified"`
	Spam         int `json:"spam"`
}

// ContactSummary is a lightweight conversation header without message bodies.
type ContactSummary struct {
	ID                    string       `json:"id"`
	PhoneNumber           string       `json:"phoneNumber"`
	DisplayName           string       `json:"displayName"`
	LastActivityTimestamp time.Time    `json:"lastActivityTimestamp"`
	TotalCalls            int          `json:"totalCalls"`
	TotalSMS              int          `json:"totalSMS"`
	LastCallOutcome       string       `json:"lastCallOutcome,omitempty"`
	TotalDuration         string       `json:"totalDuration"`
	Outcomes              OutcomeTally `json:"outcomes"`
}

// Conversation aggregates every call and SMS sharing one phone number. The
// phone number is kept verbatim as stored; formatting happens only when a
// display name is resolved.
type Conversation struct {
	ID                    string              `json:"id"`
	PhoneNumber           string              `json:"phoneNumber"`
	DisplayName           string              `json:"displayName"`
	TotalCalls            int                 `json:"totalCalls"`
	TotalSMS              int                 `json:"totalSMS"`
	LastActivityTimestamp time.Time           `json:"lastActivityTimestamp"`
	Calls                 []NormalizedMessage `json:"calls"`
	SMSMessages           []NormalizedMessage `json:"smsMessages"`
	TotalDuration         string              `json:"totalDuration"`
	Outcomes              OutcomeTally        `json:"outcomes"`

	// NameResolvedAt is the timestamp of the call that produced DisplayName.
	// A name carried by an older record never replaces one from a newer call,
	// even when the records arrive in separate merges.
	NameResolvedAt time.Time `json:"-"`
}

// RecordingInfo is the recording lookup proxy response for one call SID.
type RecordingInfo struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	DurationSecs int    `json:"duration"`
	Channels     int    `json:"channels"`
	StartTime    string `json:"startTime"`
	URL          string `json:"url"`
}
