package domain

import "slices"

// HistoryEntry is the condensed record of a job that reached a terminal state.
type HistoryEntry struct {
	JobID           string     `json:"job_id"`
	Playlist        string     `json:"playlist"`
	Status          JobStatus  `json:"status"`
	CreatedAt       Timestamp  `json:"created_at"`
	FinishedAt      *Timestamp `json:"finished_at"`
	TotalTracks     int        `json:"total_tracks"`
	CompletedTracks int        `json:"completed_tracks"`
	FailedTracks    int        `json:"failed_tracks"`
}

// FileDescriptor describes one produced output file.
type FileDescriptor struct {
	Path       string     `json:"path"`
	Size       int64      `json:"size"`
	ModifiedAt *Timestamp `json:"modified_at,omitempty"`
}

// SortHistory sorts entries by created_at descending, ties by job id ascending.
func SortHistory(entries []HistoryEntry) {
	slices.SortStableFunc(entries, func(a, b HistoryEntry) int {
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			if a.CreatedAt.After(b.CreatedAt.Time) {
				return -1
			}
			return 1
		}
		switch {
		case a.JobID < b.JobID:
			return -1
		case a.JobID > b.JobID:
			return 1
		default:
			return 0
		}
	})
}

// Snapshot is a read-only copy of everything the panel holds at one instant.
type Snapshot struct {
	Jobs         []Job                       `json:"jobs"`
	History      []HistoryEntry              `json:"history"`
	FileListings map[string][]FileDescriptor `json:"file_listings"`
	ListView     ListView                    `json:"list_view"`
	Anomalies    map[string][]string         `json:"anomalies,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Jobs:         make([]Job, len(s.Jobs)),
		History:      slices.Clone(s.History),
		FileListings: make(map[string][]FileDescriptor, len(s.FileListings)),
		ListView:     s.ListView,
		Anomalies:    make(map[string][]string, len(s.Anomalies)),
	}
	for i, job := range s.Jobs {
		out.Jobs[i] = job.Clone()
	}
	if out.History == nil {
		out.History = []HistoryEntry{}
	}
	for id, files := range s.FileListings {
		out.FileListings[id] = slices.Clone(files)
	}
	for id, notes := range s.Anomalies {
		out.Anomalies[id] = slices.Clone(notes)
	}
	return out
}
