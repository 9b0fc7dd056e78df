package api

import (
	"encoding/json"
	"slices"
	"sort"

	"morph/internal/deps"
	"morph/internal/format"
	"morph/internal/history"
	"morph/internal/queue"
	"morph/internal/workflow"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}

	dto := Job{
		ID:           job.ID,
		ClientID:     job.ClientID,
		SourceName:   job.SourceName,
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		Category:     job.Category,
		Status:       string(job.Status),
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorMessage:  job.ErrorMessage,
		InputSize:     job.InputSize,
		OutputSize:    job.OutputSize,
		DeliveredPath: job.DeliveredPath,
		RemoteObject:  job.RemoteObject,
		NeedsReview:   job.NeedsReview,
		ReviewReason:  job.ReviewReason,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if raw := job.ProbeJSON; raw != "" {
		dto.Probe = json.RawMessage(raw)
	}
	return dto
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	healthNames := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		healthNames = append(healthNames, name)
	}
	slices.Sort(healthNames)

	health := make([]StageHealth, 0, len(healthNames))
	for _, name := range healthNames {
		h := summary.StageHealth[name]
		health = append(health, StageHealth{
			Name:   name,
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}

	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}

	wf := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		QueueStats:  stats,
		StageHealth: health,
	}
	if summary.LastError != nil {
		wf.LastError = summary.LastError.Error()
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}

// FromDependencies converts tool availability checks to API payload.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FormatMatrix renders the conversion matrix, sorted by format name.
func FormatMatrix() []FormatInfo {
	matrix := format.Matrix()
	names := make([]string, 0, len(matrix))
	for name := range matrix {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FormatInfo, 0, len(names))
	for _, name := range names {
		category, _ := format.CategoryOf(name)
		out = append(out, FormatInfo{
			Format:   name,
			Category: string(category),
			Targets:  matrix[name],
		})
	}
	return out
}

// FromHistoryEntry converts a history record to its API representation.
func FromHistoryEntry(entry history.Entry) HistoryEntry {
	dto := HistoryEntry{
		ID:           entry.ID,
		ClientID:     entry.ClientID,
		SourceFormat: entry.SourceFormat,
		TargetFormat: entry.TargetFormat,
		InputSize:    entry.InputSize,
		OutputSize:   entry.OutputSize,
		DurationMS:   entry.Duration.Milliseconds(),
		Success:      entry.Success,
	}
	if !entry.CreatedAt.IsZero() {
		dto.CreatedAt = entry.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromHistoryEntries converts history records into API DTOs.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistoryEntry(entry))
	}
	return out
}

// FromClient converts a client record to its API representation.
func FromClient(client history.Client) ClientInfo {
	dto := ClientInfo{
		ClientID:         client.ClientID,
		Banned:           client.Banned,
		TotalConversions: client.TotalConversions,
	}
	if !client.FirstSeen.IsZero() {
		dto.FirstSeen = client.FirstSeen.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromClients converts client records into API DTOs.
func FromClients(clients []*history.Client) []ClientInfo {
	if len(clients) == 0 {
		return nil
	}
	out := make([]ClientInfo, 0, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		out = append(out, FromClient(*client))
	}
	return out
}

// FromSystemStats converts aggregate usage totals to API payload.
func FromSystemStats(stats history.SystemStats) SystemStats {
	dto := SystemStats{
		TotalClients:          stats.TotalClients,
		TotalConversions:      stats.TotalConversions,
		SuccessfulConversions: stats.SuccessfulConversions,
	}
	for _, pair := range stats.PopularConversions {
		dto.PopularConversions = append(dto.PopularConversions, ConversionCount{
			SourceFormat: pair.SourceFormat,
			TargetFormat: pair.TargetFormat,
			Count:        pair.Count,
		})
	}
	return dto
}

// FromActivityStats converts recent activity aggregates to API payload.
func FromActivityStats(stats history.ActivityStats) ActivityStats {
	dto := ActivityStats{
		DailyActiveClients:  stats.DailyActiveClients,
		WeeklyActiveClients: stats.WeeklyActiveClients,
	}
	for _, day := range stats.DailyConversions {
		dto.DailyConversions = append(dto.DailyConversions, DailyCount{Day: day.Day, Count: day.Count})
	}
	for _, fc := range stats.FormatDistribution {
		dto.FormatDistribution = append(dto.FormatDistribution, FormatCount{Format: fc.Format, Count: fc.Count})
	}
	return dto
}

// MergeQueueStats normalizes queue stats so every known status has a count.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	merged := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		merged[string(status)] = 0
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}
