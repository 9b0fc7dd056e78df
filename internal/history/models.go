package history

import "time"

// Client is a registered API client, keyed by the caller-supplied client id.
type Client struct {
	ClientID         string    `json:"client_id"`
	FirstSeen        time.Time `json:"first_seen"`
	Banned           bool      `json:"banned"`
	TotalConversions int       `json:"total_conversions"`
}

// Entry is one finished conversion recorded for a client.
type Entry struct {
	ID           int64         `json:"id"`
	ClientID     string        `json:"client_id"`
	SourceFormat string        `json:"source_format"`
	TargetFormat string        `json:"target_format"`
	InputSize    int64         `json:"input_size"`
	OutputSize   int64         `json:"output_size"`
	Duration     time.Duration `json:"duration_ms"`
	Success      bool          `json:"success"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ConversionPair counts how often a source/target format pair was converted.
type ConversionPair struct {
	SourceFormat string `json:"source_format"`
	TargetFormat string `json:"target_format"`
	Count        int    `json:"count"`
}

// SystemStats aggregates totals across all clients.
type SystemStats struct {
	TotalClients          int              `json:"total_clients"`
	TotalConversions      int              `json:"total_conversions"`
	SuccessfulConversions int              `json:"successful_conversions"`
	PopularConversions    []ConversionPair `json:"popular_conversions"`
}

// DailyCount is a per-day conversion count.
type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// FormatCount counts conversions from a single source format.
type FormatCount struct {
	Format string `json:"format"`
	Count  int    `json:"count"`
}

// ActivityStats summarizes recent conversion activity.
type ActivityStats struct {
	DailyConversions    []DailyCount  `json:"daily_conversions"`
	FormatDistribution  []FormatCount `json:"format_distribution"`
	DailyActiveClients  int           `json:"daily_active_clients"`
	WeeklyActiveClients int           `json:"weekly_active_clients"`
}
