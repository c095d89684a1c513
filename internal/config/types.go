package config

// Config is the daemon configuration file (JSON or YAML).
//
// Example (YAML):
//
//	logging: { level: info, console: true }
//	scheduler: { timezone: Asia/Jakarta, preview_size: 5 }
//	source: { driver: ical, path: ./events.ics, refresh: "@every 5m" }
//	storage: { driver: sqlite, path: ./eventpulse.db }
//	countdown: { interval: 1s, targets: [keynote] }
//	diagnostics: { enabled: true, addr: 127.0.0.1:6060 }
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Source    SourceConfig    `json:"source"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Countdown CountdownConfig `json:"countdown"`

	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the lifecycle scheduler.
type SchedulerConfig struct {
	// Timezone is an IANA name used when displaying trigger times.
	Timezone    string `json:"timezone,omitempty"`
	PreviewSize int    `json:"preview_size,omitempty"`
	// ListenerErrorInterval is a Go duration string; at most one listener
	// failure per event is logged per interval. Default "10s".
	ListenerErrorInterval string `json:"listener_error_interval,omitempty"`
}

// Source drivers.
const (
	SourceFile    = "file"
	SourceICal    = "ical"
	SourceStorage = "storage"
)

// SourceConfig says where event records come from.
type SourceConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	// Refresh reloads the source periodically: a cron spec ("*/10 * * * *",
	// "@hourly", "@every 5m") or a plain duration ("15m"). Empty disables it.
	Refresh string `json:"refresh,omitempty"`
	// Watch reloads a file source when it changes on disk.
	Watch bool `json:"watch,omitempty"`
}

// StorageConfig controls the optional persistence layer. Nil means disabled.
//
//	"storage": { "driver": "file", "path": "./eventpulse_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CountdownConfig selects events whose start gets a live countdown in the log.
type CountdownConfig struct {
	Interval string   `json:"interval,omitempty"` // default "1s"
	Targets  []string `json:"targets,omitempty"`
}

// DiagnosticsConfig controls the optional HTTP endpoint (/healthz, /status,
// /debug/pprof/). A non-loopback addr needs a token or allow_insecure.
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
