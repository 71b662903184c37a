package recordings

import (
	"context"
	"errors"

	"github.com/vokivo/backend/internal/models"
)

// ErrNotFound is returned when a call SID has no recordings.
var ErrNotFound = errors.New("recording not found")

// Lookup resolves recording metadata for a call SID. The engine never talks
// to the telephony provider directly; everything goes through this proxy.
type Lookup interface {
	FetchRecording(ctx context.Context, callSID string) (models.RecordingInfo, error)
}
