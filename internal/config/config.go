// Package config loads the dialer process configuration the way the
// teacher loads it: viper with a double-underscore key delimiter for
// nested blocks, defaults set explicitly, then validated with
// go-playground/validator.
package config

import (
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// PBXConfig configures both ARI and AMI clients against the same PBX.
type PBXConfig struct {
	AriURL         string `mapstructure:"ari_url" validate:"required"`
	AriUser        string `mapstructure:"ari_user" validate:"required"`
	AriPass        string `mapstructure:"ari_pass" validate:"required"`
	AriApp         string `mapstructure:"ari_app" validate:"required"`
	AmiHost        string `mapstructure:"ami_host" validate:"required"`
	AmiPort        int    `mapstructure:"ami_port" validate:"required"`
	AmiUser        string `mapstructure:"ami_user" validate:"required"`
	AmiPass        string `mapstructure:"ami_pass" validate:"required"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout"`
	ReconnectCeil  time.Duration `mapstructure:"reconnect_ceiling"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`

	AmiDialChannelPrefix string `mapstructure:"ami_dial_channel_prefix"` // e.g. "SIP/trunk"
	AmiDialContext       string `mapstructure:"ami_dial_context"`
	AmiDialExten         string `mapstructure:"ami_dial_exten"`

	// AMDWindow bounds how long the post-answer AMD classification window
	// waits for Asterisk's AMD() dialplan application to post a verdict
	// before defaulting to AMDUnknown.
	AMDWindow time.Duration `mapstructure:"amd_window"`
}

// RTPConfig configures the UDP port pool.
type RTPConfig struct {
	PortMin int `mapstructure:"port_min" validate:"required"`
	PortMax int `mapstructure:"port_max" validate:"required"`
}

// SpeechConfig configures the external speech service and its rate limits.
type SpeechConfig struct {
	Provider         string `mapstructure:"provider"` // openai|deepgram|google|azure
	APIKey           string `mapstructure:"api_key" validate:"required"`
	RequestsPerMin   int    `mapstructure:"requests_per_minute"`
	RequestsPerHour  int    `mapstructure:"requests_per_hour"`
	UnitsPerHour     int    `mapstructure:"units_per_hour"`
	MaxRetries       int    `mapstructure:"max_retries"`
}

// RecordingConfig configures CallRecorder's blob backend.
type RecordingConfig struct {
	Backend        string `mapstructure:"backend" validate:"required"` // local|s3|azure|gcs|ftp
	RetentionDays  int    `mapstructure:"retention_days"`
	LocalPath      string `mapstructure:"local_path"`
	S3Bucket       string `mapstructure:"s3_bucket"`
	S3Region       string `mapstructure:"s3_region"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	FTPAddr        string `mapstructure:"ftp_addr"`
	FTPUser        string `mapstructure:"ftp_user"`
	FTPPass        string `mapstructure:"ftp_pass"`
	FTPBaseDir     string `mapstructure:"ftp_base_dir"`
	AzureSASURL    string `mapstructure:"azure_sas_url"`
}

// PostgresConfig configures the reference gorm stores.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DBName   string `mapstructure:"db_name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Driver   string `mapstructure:"driver"` // postgres|sqlite
}

// RedisConfig configures the presence cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WebhookConfig configures the inbound AI-event HTTP server.
type WebhookConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret" validate:"required"`
}

// NotifyConfig configures DropRateMonitor's critical-severity alert transport.
type NotifyConfig struct {
	Backend      string `mapstructure:"backend"` // ses|sendgrid
	FromName     string `mapstructure:"from_name"`
	FromAddress  string `mapstructure:"from_address"`
	SendGridKey  string `mapstructure:"sendgrid_api_key"`
	SESRegion    string `mapstructure:"ses_region"`
	SESAccessKeyID     string `mapstructure:"ses_access_key_id"`     // optional, falls back to the default AWS credential chain
	SESSecretAccessKey string `mapstructure:"ses_secret_access_key"`
	AlertTo      string `mapstructure:"alert_to"` // comma-separated
}

// AppConfig is the top-level, role-agnostic process configuration.
type AppConfig struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	LogLevel    string `mapstructure:"log_level" validate:"required"`

	PBX       PBXConfig       `mapstructure:"pbx" validate:"required"`
	RTP       RTPConfig       `mapstructure:"rtp" validate:"required"`
	Speech    SpeechConfig    `mapstructure:"speech" validate:"required"`
	Recording RecordingConfig `mapstructure:"recording" validate:"required"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Webhook   WebhookConfig   `mapstructure:"webhook" validate:"required"`
	Notify    NotifyConfig    `mapstructure:"notify"`

	SchedulerTickInterval time.Duration `mapstructure:"scheduler_tick_interval"`
}

// InitConfig wires a viper instance the way the teacher does: double
// underscore key delimiter for nested blocks, an optional ENV_PATH override,
// defaults, then one read of the config file; AutomaticEnv makes
// environment variables win over file values.
func InitConfig() (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))

	v.AddConfigPath(".")
	v.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		log.Printf("config: reading from ENV_PATH=%s", path)
		v.SetConfigFile(path)
	}
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: no config file found, relying on environment variables: %v", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "dialer")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCHEDULER_TICK_INTERVAL", 5*time.Second)

	v.SetDefault("PBX__ARI_APP", "dialer")
	v.SetDefault("PBX__ACTION_TIMEOUT", 30*time.Second)
	v.SetDefault("PBX__RECONNECT_CEILING", 300*time.Second)
	v.SetDefault("PBX__MAX_RECONNECTS", 0) // 0 = unbounded
	v.SetDefault("PBX__AMI_DIAL_CHANNEL_PREFIX", "SIP/trunk")
	v.SetDefault("PBX__AMI_DIAL_CONTEXT", "outbound")
	v.SetDefault("PBX__AMI_DIAL_EXTEN", "s")
	v.SetDefault("PBX__AMD_WINDOW", 3*time.Second)

	v.SetDefault("RTP__PORT_MIN", 10000)
	v.SetDefault("RTP__PORT_MAX", 20000)

	v.SetDefault("SPEECH__PROVIDER", "openai")
	v.SetDefault("SPEECH__REQUESTS_PER_MINUTE", 60)
	v.SetDefault("SPEECH__REQUESTS_PER_HOUR", 2000)
	v.SetDefault("SPEECH__UNITS_PER_HOUR", 36000)
	v.SetDefault("SPEECH__MAX_RETRIES", 3)

	v.SetDefault("RECORDING__BACKEND", "local")
	v.SetDefault("RECORDING__RETENTION_DAYS", 90)
	v.SetDefault("RECORDING__LOCAL_PATH", "./recordings")
	v.SetDefault("RECORDING__S3_REGION", "us-east-1")
	v.SetDefault("RECORDING__FTP_BASE_DIR", "/recordings")

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DRIVER", "postgres")
	v.SetDefault("POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__ADDR", "localhost:6379")
	v.SetDefault("REDIS__DB", 0)

	v.SetDefault("WEBHOOK__HOST", "0.0.0.0")
	v.SetDefault("WEBHOOK__PORT", 8090)

	v.SetDefault("NOTIFY__BACKEND", "ses")
	v.SetDefault("NOTIFY__SES_REGION", "us-east-1")
	v.SetDefault("NOTIFY__FROM_NAME", "Dialer Alerts")
}

// Load unmarshals and validates the config.
func Load(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
