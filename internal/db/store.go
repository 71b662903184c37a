package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/conversation"
	"github.com/vokivo/backend/internal/models"
)

// ErrSessionNotFound is returned when a bearer token resolves to no live
// session.
var ErrSessionNotFound = errors.New("session not found")

type Store struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func New(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool, Logger: logger}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

const callColumns = `id, call_id, call_sid, assistant_id, phone_number, start_time, end_time,
	call_duration, call_status, call_outcome, transcription, recording_sid, structured_data,
	created_at, updated_at`

// ListCalls returns call records scoped to the given assistant set. An empty
// set short-circuits to an empty result: authorization emptiness is not a
// query error.
func (s *Store) ListCalls(ctx context.Context, q conversation.CallQuery) ([]models.CallRecord, error) {
	if len(q.AssistantIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + callColumns + ` FROM call_history`
	args := []any{q.AssistantIDs}
	wheres := []string{"assistant_id = ANY($1)"}
	if q.PhoneNumber != "" {
		args = append(args, q.PhoneNumber)
		wheres = append(wheres, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		wheres = append(wheres, fmt.Sprintf("start_time > $%d", len(args)))
	}
	if q.From != nil {
		args = append(args, *q.From)
		wheres = append(wheres, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if q.Before != nil {
		args = append(args, *q.Before)
		wheres = append(wheres, fmt.Sprintf("start_time < $%d", len(args)))
	}
	query += " WHERE " + strings.Join(wheres, " AND ")
	if q.Descending {
		query += " ORDER BY start_time DESC, id DESC"
	} else {
		query += " ORDER BY start_time ASC, id ASC"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CallRecord
	for rows.Next() {
		rec, err := s.scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) scanCall(rows pgx.Rows) (models.CallRecord, error) {
	var (
		rec            models.CallRecord
		callID         *string
		callSID        *string
		endTime        *time.Time
		outcome        *string
		transcription  []byte
		recordingSID   *string
		structuredData []byte
	)
	if err := rows.Scan(
		&rec.ID, &callID, &callSID, &rec.AssistantID, &rec.PhoneNumber, &rec.StartTime, &endTime,
		&rec.DurationSecs, &rec.Status, &outcome, &transcription, &recordingSID, &structuredData,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return models.CallRecord{}, err
	}
	if callID != nil {
		rec.CallID = *callID
	}
	if rec.CallID == "" {
		rec.CallID = rec.ID
	}
	if callSID != nil {
		rec.CallSID = *callSID
	}
	if endTime != nil {
		rec.EndTime = *endTime
	}
	if outcome != nil {
		rec.Outcome = *outcome
	}
	if recordingSID != nil {
		rec.RecordingSID = *recordingSID
	}
	// Provider payloads are free-form; a malformed blob degrades to nil
	// rather than failing the whole scan.
	if len(transcription) > 0 {
		if err := json.Unmarshal(transcription, &rec.Transcript); err != nil {
			s.Logger.Debug().Err(err).Str("call_id", rec.CallID).Msg("unparseable transcription payload")
		}
	}
	if len(structuredData) > 0 {
		if err := json.Unmarshal(structuredData, &rec.StructuredData); err != nil {
			s.Logger.Debug().Err(err).Str("call_id", rec.CallID).Msg("unparseable structured data payload")
		}
	}
	return rec, nil
}

// ListSMS returns SMS records owned by one user, matching either side of the
// number pair when a phone number filter is set.
func (s *Store) ListSMS(ctx context.Context, q conversation.SMSQuery) ([]models.SMSRecord, error) {
	if q.UserID == "" {
		return nil, nil
	}

	query := `SELECT message_sid, user_id, from_number, to_number, direction, body, status,
		date_created, date_sent FROM sms_messages`
	args := []any{q.UserID}
	wheres := []string{"user_id = $1"}
	if q.PhoneNumber != "" {
		args = append(args, q.PhoneNumber)
		wheres = append(wheres, fmt.Sprintf("(from_number = $%d OR to_number = $%d)", len(args), len(args)))
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		wheres = append(wheres, fmt.Sprintf("date_created > $%d", len(args)))
	}
	if q.From != nil {
		args = append(args, *q.From)
		wheres = append(wheres, fmt.Sprintf("date_created >= $%d", len(args)))
	}
	if q.Before != nil {
		args = append(args, *q.Before)
		wheres = append(wheres, fmt.Sprintf("date_created < $%d", len(args)))
	}
	query += " WHERE " + strings.Join(wheres, " AND ")
	if q.Descending {
		query += " ORDER BY date_created DESC, message_sid DESC"
	} else {
		query += " ORDER BY date_created ASC, message_sid ASC"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SMSRecord
	for rows.Next() {
		var (
			rec      models.SMSRecord
			dateSent *time.Time
		)
		if err := rows.Scan(&rec.MessageSID, &rec.UserID, &rec.From, &rec.To, &rec.Direction,
			&rec.Body, &rec.Status, &rec.DateCreated, &dateSent); err != nil {
			return nil, err
		}
		if dateSent != nil {
			rec.DateSent = *dateSent
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) CountCallsBefore(ctx context.Context, assistantIDs []string, phoneNumber string, before time.Time) (int, error) {
	if len(assistantIDs) == 0 {
		return 0, nil
	}
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM call_history WHERE assistant_id = ANY($1) AND phone_number = $2 AND start_time < $3`,
		assistantIDs, phoneNumber, before,
	).Scan(&n)
	return n, err
}

func (s *Store) CountSMSBefore(ctx context.Context, userID, phoneNumber string, before time.Time) (int, error) {
	if userID == "" {
		return 0, nil
	}
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sms_messages WHERE user_id = $1 AND (from_number = $2 OR to_number = $2) AND date_created < $3`,
		userID, phoneNumber, before,
	).Scan(&n)
	return n, err
}

// ResolveSession maps a bearer token to the owning user and that user's
// assistant-id set. Expired or unknown tokens return ErrSessionNotFound.
func (s *Store) ResolveSession(ctx context.Context, token string) (string, []string, error) {
	var userID string
	err := s.Pool.QueryRow(ctx,
		`SELECT user_id FROM sessions WHERE token = $1 AND (expires_at IS NULL OR expires_at > NOW())`,
		token,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrSessionNotFound
		}
		return "", nil, err
	}

	rows, err := s.Pool.Query(ctx, `SELECT id FROM assistants WHERE user_id = $1`, userID)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var assistantIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", nil, err
		}
		assistantIDs = append(assistantIDs, id)
	}
	return userID, assistantIDs, rows.Err()
}
