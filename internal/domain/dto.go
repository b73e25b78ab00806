package domain

// DefaultProvider is used when a create request does not name a metadata source.
const DefaultProvider = "spotify"

// CreateJobRequest represents the payload for submitting a new download job.
type CreateJobRequest struct {
	Provider     string  `json:"provider" validate:"omitempty,alphanum"`
	Store        string  `json:"store" validate:"required"`
	URL          string  `json:"url" validate:"required,source_url"`
	Quality      *string `json:"quality,omitempty"`
	PathTemplate string  `json:"path_template" validate:"required"`
}

// JobResponse wraps a single job as returned by the backend.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobsListResponse wraps the active job collection.
type JobsListResponse struct {
	Jobs []Job `json:"jobs"`
}

// HistoryResponse wraps the history collection.
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

// FilesResponse wraps a job's file listing.
type FilesResponse struct {
	Files []FileDescriptor `json:"files"`
}

// CancelResponse is the acknowledgement of a cancel request. The backend has
// used both keys over time.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
	Accepted  bool `json:"accepted"`
}

// Acknowledged reports whether the backend accepted the request.
func (r CancelResponse) Acknowledged() bool {
	return r.Cancelled || r.Accepted
}

// ProvidersResponse lists the metadata sources and stores the backend supports.
type ProvidersResponse struct {
	Playlists []string `json:"playlists"`
	Stores    []string `json:"stores"`
}
