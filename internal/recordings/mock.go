package recordings

import (
	"context"
	"fmt"
	"time"

	"github.com/vokivo/backend/internal/models"
	"github.com/vokivo/backend/internal/utils"
)

// MockLookup produces deterministic recording metadata derived from the call
// SID, for development without a proxy configured.
type MockLookup struct{}

func (m MockLookup) FetchRecording(ctx context.Context, callSID string) (models.RecordingInfo, error) {
	if callSID == "" {
		return models.RecordingInfo{}, ErrNotFound
	}
	h := utils.HashStringToUint64(callSID)

	durations := []int{45, 90, 125, 210, 320}
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(h%86400) * time.Second)

	return models.RecordingInfo{
		SID:          fmt.Sprintf("RE%016x", h),
		Status:       "completed",
		DurationSecs: durations[h%uint64(len(durations))],
		Channels:     2,
		StartTime:    start.Format(time.RFC3339),
		URL:          fmt.Sprintf("https://recordings.example.com/%016x.mp3", h),
	}, nil
}
