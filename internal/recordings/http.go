package recordings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vokivo/backend/internal/models"
)

// HTTPLookup asks the recording proxy service for recording metadata.
type HTTPLookup struct {
	BaseURL string
	Client  *http.Client
}

type proxyResponse struct {
	Success    bool `json:"success"`
	Recordings []struct {
		SID       string `json:"sid"`
		Status    string `json:"status"`
		Duration  string `json:"duration"`
		Channels  int    `json:"channels"`
		StartTime string `json:"startTime"`
		URL       string `json:"url"`
	} `json:"recordings"`
}

func (h HTTPLookup) FetchRecording(ctx context.Context, callSID string) (models.RecordingInfo, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}

	endpoint := fmt.Sprintf("%s/api/v1/call/%s/recordings", h.BaseURL, url.PathEscape(callSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.RecordingInfo{}, err
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		// One retry; transient proxy hiccups are common right after a call ends.
		resp, err = h.Client.Do(req.Clone(ctx))
		if err != nil {
			return models.RecordingInfo{}, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.RecordingInfo{}, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.RecordingInfo{}, fmt.Errorf("recording proxy error: %s", resp.Status)
	}

	var body proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.RecordingInfo{}, err
	}
	if !body.Success || len(body.Recordings) == 0 {
		return models.RecordingInfo{}, ErrNotFound
	}

	first := body.Recordings[0]
	duration, _ := strconv.Atoi(first.Duration)
	return models.RecordingInfo{
		SID:          first.SID,
		Status:       first.Status,
		DurationSecs: duration,
		Channels:     first.Channels,
		StartTime:    first.StartTime,
		URL:          first.URL,
	}, nil
}
