package domain

// DownloadMode controls how output paths are laid out.
type DownloadMode string

const (
	DownloadModeByArtist     DownloadMode = "by_artist"
	DownloadModeSingleFolder DownloadMode = "single_folder"
)

// ProxySettings holds the SOCKS5 proxy used by the backend for metadata lookups.
// When Enabled, Host and Port must both be set.
type ProxySettings struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port     int    `json:"port" validate:"proxy_port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// DownloadSettings holds the output path templates.
type DownloadSettings struct {
	Mode                 DownloadMode `json:"mode" validate:"omitempty,oneof=by_artist single_folder"`
	ByArtistTemplate     string       `json:"by_artist_template"`
	SingleFolderTemplate string       `json:"single_folder_template"`
	ActiveTemplate       string       `json:"active_template,omitempty"`
}

// AppSettings is the user-editable backend configuration.
type AppSettings struct {
	Proxy    ProxySettings    `json:"proxy"`
	Download DownloadSettings `json:"download"`
}
