package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID            int64           `json:"id"`
	ClientID      string          `json:"clientId"`
	SourceName    string          `json:"sourceName"`
	SourceFormat  string          `json:"sourceFormat"`
	TargetFormat  string          `json:"targetFormat"`
	Category      string          `json:"category,omitempty"`
	Status        string          `json:"status"`
	Progress      JobProgress     `json:"progress"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	InputSize     int64           `json:"inputSize"`
	OutputSize    int64           `json:"outputSize,omitempty"`
	DeliveredPath string          `json:"deliveredPath,omitempty"`
	RemoteObject  string          `json:"remoteObject,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	NeedsReview   bool            `json:"needsReview"`
	ReviewReason  string          `json:"reviewReason,omitempty"`
	Probe         json.RawMessage `json:"probe,omitempty"`
}

// JobProgress captures stage progress information for a queue entry.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *Job           `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// FormatInfo describes a supported source format and its legal targets.
type FormatInfo struct {
	Format   string   `json:"format"`
	Category string   `json:"category"`
	Targets  []string `json:"targets"`
}

// FormatsResponse wraps the conversion matrix.
type FormatsResponse struct {
	Formats []FormatInfo `json:"formats"`
}

// HistoryEntry describes a completed conversion for history queries.
type HistoryEntry struct {
	ID           int64  `json:"id"`
	ClientID     string `json:"clientId"`
	SourceFormat string `json:"sourceFormat"`
	TargetFormat string `json:"targetFormat"`
	InputSize    int64  `json:"inputSize"`
	OutputSize   int64  `json:"outputSize"`
	DurationMS   int64  `json:"durationMs"`
	Success      bool   `json:"success"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// ClientInfo describes a registered client.
type ClientInfo struct {
	ClientID         string `json:"clientId"`
	FirstSeen        string `json:"firstSeen,omitempty"`
	Banned           bool   `json:"banned"`
	TotalConversions int    `json:"totalConversions"`
}

// ConversionCount pairs a conversion with its occurrence count.
type ConversionCount struct {
	SourceFormat string `json:"sourceFormat"`
	TargetFormat string `json:"targetFormat"`
	Count        int    `json:"count"`
}

// SystemStats aggregates usage totals for admin consumers.
type SystemStats struct {
	TotalClients          int               `json:"totalClients"`
	TotalConversions      int               `json:"totalConversions"`
	SuccessfulConversions int               `json:"successfulConversions"`
	PopularConversions    []ConversionCount `json:"popularConversions"`
}

// DailyCount pairs a day with an activity count.
type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// FormatCount pairs a target format with an occurrence count.
type FormatCount struct {
	Format string `json:"format"`
	Count  int    `json:"count"`
}

// ActivityStats summarizes recent conversion activity.
type ActivityStats struct {
	DailyConversions    []DailyCount  `json:"dailyConversions"`
	FormatDistribution  []FormatCount `json:"formatDistribution"`
	DailyActiveClients  int           `json:"dailyActiveClients"`
	WeeklyActiveClients int           `json:"weeklyActiveClients"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// HistoryResponse wraps history entries.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ClientListResponse wraps registered clients.
type ClientListResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// ErrorResponse carries a machine-readable error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
