package config

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Janitor JanitorConfig `json:"janitor,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`

	// OperatorUserID receives gateway log DMs (see logging.gateway).
	OperatorUserID string `json:"operator_user_id,omitempty"`

	// SendTimeout bounds every outbound gateway call. Go duration string.
	// Default "10s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Gateway LoggingGateway `json:"gateway"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingGateway struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence backend for the subscription
// registry and tenant settings snapshots.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./voicely_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// JanitorConfig controls the periodic tracker sweep. Schedule accepts any
// robfig/cron spec, including "@every 10m" forms.
type JanitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}
