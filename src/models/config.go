package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	Storage    MStorageConfig    `yaml:"storage"`
	Stream     MStreamConfig     `yaml:"stream"`
	Execution  MExecutionConfig  `yaml:"execution"`
	Compliance MComplianceConfig `yaml:"compliance"`
	FanOut     MFanOutConfig     `yaml:"fan_out"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MStreamConfig struct {
	Endpoint           string   `yaml:"endpoint"`
	Symbols            []string `yaml:"symbols"`
	TickIntervalMs     int      `yaml:"tick_interval_ms"`
	ConnectTimeoutSec  int      `yaml:"connect_timeout_seconds"`
	BaseDelayMs        int      `yaml:"base_delay_ms"`
	MaxDelayMs         int      `yaml:"max_delay_ms"`
	BackoffMultiplier  float64  `yaml:"backoff_multiplier"`
	StableAfterSec     int      `yaml:"stable_after_seconds"`
	SessionTTLSec      int      `yaml:"session_ttl_seconds"`
	RenewMarginSec     int      `yaml:"renew_margin_seconds"`
	BreakerThreshold   int      `yaml:"breaker_threshold"`
	BreakerCooldownSec int      `yaml:"breaker_cooldown_seconds"`
}

type MExecutionConfig struct {
	SubmitTimeoutSec   int `yaml:"submit_timeout_seconds"`
	MaxRetries         int `yaml:"max_retries"`
	RetryBaseDelayMs   int `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int `yaml:"retry_max_delay_ms"`
	ResultTTLHours     int `yaml:"result_ttl_hours"`
	BreakerThreshold   int `yaml:"breaker_threshold"`
	BreakerCooldownSec int `yaml:"breaker_cooldown_seconds"`
}

type MComplianceConfig struct {
	CalendarMIC   string `yaml:"calendar_mic"`
	AccountType   string `yaml:"account_type"` // "margin" or "cash"
	WindowDays    int    `yaml:"window_days"`
	FlagThreshold int    `yaml:"flag_threshold"`
}

type MFanOutConfig struct {
	ReplayBufferSize     int `yaml:"replay_buffer_size"`
	SubscriberQueueSize  int `yaml:"subscriber_queue_size"`
	HeartbeatIntervalSec int `yaml:"heartbeat_interval_seconds"`
}
