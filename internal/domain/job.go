package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Job is a single download request tracked through its lifecycle.
type Job struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	Store           string     `json:"store"`
	SourceURL       string     `json:"source_url"`
	Quality         *string    `json:"quality"`
	PathTemplate    string     `json:"path_template"`
	CollectionName  *string    `json:"collection_name,omitempty"`
	OutputDir       string     `json:"output_dir"`
	Status          JobStatus  `json:"status"`
	Progress        float64    `json:"progress"`
	TotalTracks     int        `json:"total_tracks"`
	CompletedTracks int        `json:"completed_tracks"`
	FailedTracks    int        `json:"failed_tracks"`
	Message         *string    `json:"message"`
	Error           *string    `json:"error"`
	Logs            []string   `json:"logs"`
	DownloadedFiles []string   `json:"downloaded_files,omitempty"`
	CreatedAt       Timestamp  `json:"created_at"`
	UpdatedAt       Timestamp  `json:"updated_at"`
	FinishedAt      *Timestamp `json:"finished_at"`
}

// Clone returns a deep copy so that snapshots never share mutable state.
func (j Job) Clone() Job {
	out := j
	out.Quality = clonePtr(j.Quality)
	out.CollectionName = clonePtr(j.CollectionName)
	out.Message = clonePtr(j.Message)
	out.Error = clonePtr(j.Error)
	out.FinishedAt = clonePtr(j.FinishedAt)
	out.Logs = slices.Clone(j.Logs)
	out.DownloadedFiles = slices.Clone(j.DownloadedFiles)
	return out
}

// DisplayName returns the collection name, the latest message or the source
// URL, in that order of preference.
func (j Job) DisplayName() string {
	if j.CollectionName != nil && *j.CollectionName != "" {
		return *j.CollectionName
	}
	if j.Message != nil && *j.Message != "" {
		return *j.Message
	}
	return j.SourceURL
}

// CheckInvariants returns a description of every numeric invariant the record
// violates. An empty result means the record is consistent.
func (j Job) CheckInvariants() []string {
	var violations []string

	if j.TotalTracks < 0 || j.CompletedTracks < 0 || j.FailedTracks < 0 {
		violations = append(violations, fmt.Sprintf(
			"negative track count: total=%d completed=%d failed=%d",
			j.TotalTracks, j.CompletedTracks, j.FailedTracks))
	}
	if j.TotalTracks > 0 && j.CompletedTracks+j.FailedTracks > j.TotalTracks {
		violations = append(violations, fmt.Sprintf(
			"completed_tracks + failed_tracks exceeds total_tracks: %d + %d > %d",
			j.CompletedTracks, j.FailedTracks, j.TotalTracks))
	}
	if j.Progress < 0 || j.Progress > 1 {
		violations = append(violations, fmt.Sprintf("progress out of range: %g", j.Progress))
	}
	if !j.Status.IsKnown() {
		violations = append(violations, fmt.Sprintf("unknown status %q", j.Status))
	}

	return violations
}

// JobLess orders jobs by created_at descending, ties broken by id ascending.
func JobLess(a, b Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt.Time) {
		return a.CreatedAt.After(b.CreatedAt.Time)
	}
	return a.ID < b.ID
}

// SortJobs sorts jobs in place using the canonical display order.
func SortJobs(jobs []Job) {
	slices.SortStableFunc(jobs, func(a, b Job) int {
		switch {
		case JobLess(a, b):
			return -1
		case JobLess(b, a):
			return 1
		default:
			return 0
		}
	})
}

// JobFilter narrows a job projection for display.
type JobFilter struct {
	Statuses []JobStatus
	Query    string
}

// FilterJobs returns the jobs matching the filter, preserving order.
func FilterJobs(jobs []Job, filter JobFilter) []Job {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, job.Status) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(job.DisplayName()), query) &&
			!strings.Contains(strings.ToLower(job.SourceURL), query) {
			continue
		}
		out = append(out, job)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
