package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vokivo/backend/internal/models"
)

// NormalizeCall converts a raw call record into the unified message shape.
// Malformed transcript or analysis payloads degrade silently: the message is
// still produced with the field omitted.
func NormalizeCall(rec models.CallRecord) models.NormalizedMessage {
	id := rec.CallID
	if id == "" {
		id = rec.ID
	}
	return models.NormalizedMessage{
		Type:         models.MessageTypeCall,
		ID:           id,
		Timestamp:    rec.Timestamp(),
		Direction:    models.DirectionInbound,
		Duration:     FormatDuration(rec.DurationSecs),
		DurationSecs: rec.DurationSecs,
		Status:       rec.Status,
		Resolution:   Resolution(rec),
		Transcript:   NormalizeTranscript(rec.Transcript),
		RecordingSID: rec.RecordingSID,
		AssistantID:  rec.AssistantID,
	}
}

// NormalizeSMS converts a raw SMS record into the unified message shape.
func NormalizeSMS(rec models.SMSRecord) models.NormalizedMessage {
	return models.NormalizedMessage{
		Type:      models.MessageTypeSMS,
		ID:        rec.MessageSID,
		Timestamp: rec.DateCreated,
		Direction: rec.Direction,
		Status:    rec.Status,
		Body:      rec.Body,
	}
}

// Resolution picks the human-readable call resolution: the provider outcome
// when present, otherwise a label derived from the call status.
func Resolution(rec models.CallRecord) string {
	if rec.Outcome != "" {
		return rec.Outcome
	}
	switch strings.ToLower(strings.TrimSpace(rec.Status)) {
	case "completed":
		return "Completed"
	case "no-answer":
		return "No Answer"
	case "busy":
		return "Busy"
	case "failed":
		return "Failed"
	default:
		return "Unknown"
	}
}

// ClassifyOutcome buckets a resolution/status text into an outcome class by
// keyword match.
func ClassifyOutcome(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "appointment") || strings.Contains(t, "booked"):
		return models.OutcomeAppointment
	case strings.Contains(t, "qualified") && !strings.Contains(t, "not"):
		return models.OutcomeQualified
	case strings.Contains(t, "spam"):
		return models.OutcomeSpam
	case strings.Contains(t, "not qualified") || strings.Contains(t, "not eligible"):
		return models.OutcomeNotQualified
	default:
		return models.OutcomeUnknown
	}
}

// NormalizeTranscript maps provider roles to display speakers and flattens the
// content shapes providers send.
func NormalizeTranscript(entries []models.TranscriptEntry) []models.TranscriptTurn {
	if len(entries) == 0 {
		return nil
	}
	turns := make([]models.TranscriptTurn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, models.TranscriptTurn{
			Speaker: speakerFor(e.Role),
			Text:    contentText(e.Content),
			Time:    e.Time,
		})
	}
	return turns
}

func speakerFor(role string) string {
	switch role {
	case "user":
		return "Customer"
	case "assistant":
		return "Agent"
	default:
		return role
	}
}

func contentText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, fmt.Sprintf("%v", p))
			}
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(v, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatDuration renders integer seconds as M:SS with zero-padded seconds.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// ParseDuration accepts either an M:SS string or a bare integer of seconds.
// Unparseable input counts as zero.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if mins, secs, ok := strings.Cut(s, ":"); ok {
		m, _ := strconv.Atoi(mins)
		sec, _ := strconv.Atoi(secs)
		return m*60 + sec
	}
	n, _ := strconv.Atoi(s)
	return n
}

// TotalDuration sums per-call seconds and reformats, never adding formatted
// strings together.
func TotalDuration(calls []models.NormalizedMessage) string {
	total := 0
	for _, c := range calls {
		total += c.DurationSecs
	}
	return FormatDuration(total)
}
