package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	GitHub   GitHubConfig   `json:"github"`
	Poll     PollConfig     `json:"poll"`
	Webhook  WebhookConfig  `json:"webhook"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminChatID receives operator alerts (quota exhaustion).
	// 0 disables alerting.
	AdminChatID int64 `json:"admin_chat_id,omitempty"`

	// SendRatePerSec throttles outbound messages. Defaults to 3.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type GitHubConfig struct {
	// Tokens is the shared credential pool. Empty is legal: the client
	// degrades to unauthenticated access (60 requests/hour, no rotation).
	Tokens []string `json:"tokens,omitempty"`

	// WaitThreshold is the longest quota-reset wait the client will sleep
	// through before giving up on the current cycle. Go duration string,
	// default "300s".
	WaitThreshold string `json:"wait_threshold,omitempty"`

	// CommitPage is how many commits are fetched per poll check (default 10).
	CommitPage int `json:"commit_page,omitempty"`
}

// PollConfig controls the fallback polling loop.
type PollConfig struct {
	Enabled bool `json:"enabled"`

	// Schedule accepts a Go duration ("60s", "5m") or a cron expression
	// ("*/2 * * * *", "@hourly"). Default "60s".
	Schedule string `json:"schedule,omitempty"`

	// RepoDelay is the pause between per-repository checks within one cycle,
	// smoothing quota consumption. Go duration string, default "2s".
	RepoDelay string `json:"repo_delay,omitempty"`

	// Stats refreshes repository statistics each cycle. Costs several extra
	// API calls per repository; disable on tight quotas.
	Stats bool `json:"stats"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
	Path    string `json:"path,omitempty"` // default "/webhook"

	// Secret is the shared HMAC secret. Empty disables signature
	// verification (logged as a warning at startup).
	Secret string `json:"secret,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Driver values:
//   - "file" (default): JSON snapshot with atomic replace
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`
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
