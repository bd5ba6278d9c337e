package ipc

import "murmur/internal/queue"

// wireTimeFormat is used for RFC3339 timestamps in IPC payloads.
const wireTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// PingRequest probes daemon liveness.
type PingRequest struct{}

// PingResponse reports the responding daemon process.
type PingResponse struct {
	PID int `json:"pid"`
}

// StopRequest asks the daemon process to shut down. Drain lets queued work
// finish before exiting; otherwise in-flight items are interrupted.
type StopRequest struct {
	Drain bool `json:"drain"`
}

// StopResponse indicates how the shutdown proceeds.
type StopResponse struct {
	Stopping bool `json:"stopping"`
	Draining bool `json:"draining"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// QueueItem describes a queue entry in a transport-friendly format. The
// transcript body stays out of the payload; callers read the artifact files
// directly when they need full text.
type QueueItem struct {
	ID              int64   `json:"id"`
	AudioPath       string  `json:"audio_path"`
	Status          string  `json:"status"`
	CapturedAt      string  `json:"captured_at,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
	TranscriptPath  string  `json:"transcript_path,omitempty"`
	PromptPath      string  `json:"prompt_path,omitempty"`
	PromptText      string  `json:"prompt_text,omitempty"`
	ImagePath       string  `json:"image_path,omitempty"`
	RenderJobID     string  `json:"render_job_id,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	ProgressStage   string  `json:"progress_stage,omitempty"`
	ProgressPercent float64 `json:"progress_percent"`
	ProgressMessage string  `json:"progress_message,omitempty"`
	NeedsReview     bool    `json:"needs_review"`
	ReviewReason    string  `json:"review_reason,omitempty"`
}

// StageHealth describes readiness of a pipeline stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StatusResponse represents combined daemon/pipeline status information.
type StatusResponse struct {
	Running      bool               `json:"running"`
	Draining     bool               `json:"draining"`
	QueueStats   map[string]int     `json:"queue_stats"`
	LastError    string             `json:"last_error"`
	LastItem     *QueueItem         `json:"last_item"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	StageHealth  []StageHealth      `json:"stage_health"`
	Dependencies []DependencyStatus `json:"dependencies"`
	PID          int                `json:"pid"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// Queue clear scopes accepted by QueueClearRequest.
const (
	ClearScopeAll       = "all"
	ClearScopeCompleted = "completed"
	ClearScopeFailed    = "failed"
)

// QueueClearRequest removes queue items. An empty scope clears everything.
type QueueClearRequest struct {
	Scope string `json:"scope"`
}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// FromQueueItem converts a queue record to its wire representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	dto := QueueItem{
		ID:              item.ID,
		AudioPath:       item.AudioPath,
		Status:          string(item.Status),
		TranscriptPath:  item.TranscriptPath,
		PromptPath:      item.PromptPath,
		PromptText:      item.PromptText,
		ImagePath:       item.ImagePath,
		RenderJobID:     item.RenderJobID,
		ErrorMessage:    item.ErrorMessage,
		ProgressStage:   item.ProgressStage,
		ProgressPercent: item.ProgressPercent,
		ProgressMessage: item.ProgressMessage,
		NeedsReview:     item.NeedsReview,
		ReviewReason:    item.ReviewReason,
	}
	if !item.CapturedAt.IsZero() {
		dto.CapturedAt = item.CapturedAt.UTC().Format(wireTimeFormat)
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(wireTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(wireTimeFormat)
	}
	return dto
}

// FromQueueItems converts a slice of queue records into wire DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromQueueItem(item))
	}
	return out
}
