package response

import (
	"time"

	"github.com/user/forum-crawler/internal/entity"
)

type CrawlAcceptedResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	SectionIDs []string `json:"fids"`
	MaxPages   int      `json:"max_pages"`
	Overwrite  bool     `json:"overwrite"`
}

// HealthResponse maps each dependency to "healthy" or "unhealthy".
type HealthResponse map[string]string

// RunResponse is a DTO for one execution log entry.
type RunResponse struct {
	ID            int64          `json:"id"`
	Status        string         `json:"status"`
	ExecutionType string         `json:"execution_type"`
	Environment   string         `json:"environment"`
	Command       string         `json:"command"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Pages         int            `json:"pages"`
	PostsCount    int            `json:"posts_count"`
	Message       string         `json:"message,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	DurationSec   *float64       `json:"duration_seconds,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// NewRunsResponse converts execution log entries into their DTOs.
func NewRunsResponse(logs []entity.ExecutionLog) RunsResponse {
	runs := make([]RunResponse, 0, len(logs))
	for _, l := range logs {
		run := RunResponse{
			ID:            l.ID,
			Status:        string(l.Status),
			ExecutionType: string(l.ExecutionType),
			Environment:   l.Environment,
			Command:       l.Command,
			Parameters:    l.Parameters,
			Pages:         l.Pages,
			PostsCount:    l.PostsCount,
			Message:       l.Message,
			StartTime:     l.StartTime,
			EndTime:       l.EndTime,
		}
		if l.EndTime != nil {
			d := l.EndTime.Sub(l.StartTime).Seconds()
			run.DurationSec = &d
		}
		runs = append(runs, run)
	}
	return RunsResponse{Runs: runs}
}
