package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config collects everything the daemons read from the environment. Every
// knob can also come from an optional yaml config file, but the environment
// is the primary interface.
type Config struct {
	DB       DBConfig       `mapstructure:"db" yaml:"db"`
	S3       S3Config       `mapstructure:"s3" yaml:"s3"`
	TTS      TTSConfig      `mapstructure:"tts" yaml:"tts"`
	Worker   WorkerConfig   `mapstructure:"worker" yaml:"worker"`
	Watchdog WatchdogConfig `mapstructure:"watchdog" yaml:"watchdog"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type DBConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Name     string `mapstructure:"name" yaml:"name"`
}

type S3Config struct {
	Endpoint          string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey         string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey         string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket            string `mapstructure:"bucket" yaml:"bucket"`
	Region            string `mapstructure:"region" yaml:"region"`
	PresignExpiration int    `mapstructure:"presign_expiration" yaml:"presign_expiration"`
}

type TTSConfig struct {
	APIURL           string `mapstructure:"api_url" yaml:"api_url"`
	APIKey           string `mapstructure:"api_key" yaml:"api_key"`
	SpeakerAudioPath string `mapstructure:"speaker_audio_path" yaml:"speaker_audio_path"`
	ProfilePath      string `mapstructure:"profile_path" yaml:"profile_path"`
	PollAttempts     int    `mapstructure:"mp3_poll_attempts" yaml:"mp3_poll_attempts"`
	PollInterval     int    `mapstructure:"mp3_poll_interval" yaml:"mp3_poll_interval"`
}

type WorkerConfig struct {
	ID                string `mapstructure:"id" yaml:"id"`
	MaxRetries        int    `mapstructure:"max_retries" yaml:"max_retries"`
	GPULimit          int    `mapstructure:"gpu_limit" yaml:"gpu_limit"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

type WatchdogConfig struct {
	ThresholdMinutes int `mapstructure:"threshold_minutes" yaml:"threshold_minutes"`
	IntervalSeconds  int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

type APIConfig struct {
	// Port enables the read-only status API inside the worker daemon when
	// non-empty.
	Port string `mapstructure:"port" yaml:"port"`
}

type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// envBindings maps viper keys to the environment variables the deployment
// uses. These names predate this service and are shared with the ops tooling,
// so they are bound explicitly rather than derived from the key.
var envBindings = map[string]string{
	"db.url":                     "DATABASE_URL",
	"db.host":                    "DB_HOST",
	"db.port":                    "DB_PORT",
	"db.user":                    "DB_USER",
	"db.password":                "DB_PASSWORD",
	"db.name":                    "DB_NAME",
	"s3.endpoint":                "S3_ENDPOINT",
	"s3.access_key":              "S3_ACCESS_KEY",
	"s3.secret_key":              "S3_SECRET_KEY",
	"s3.bucket":                  "S3_BUCKET",
	"s3.region":                  "S3_REGION",
	"s3.presign_expiration":      "S3_PRESIGN_EXPIRATION",
	"tts.api_url":                "TTS_API_URL",
	"tts.api_key":                "TTS_API_KEY",
	"tts.speaker_audio_path":     "SPEAKER_AUDIO_PATH",
	"tts.profile_path":           "TTS_PROFILE_PATH",
	"tts.mp3_poll_attempts":      "MP3_POLL_ATTEMPTS",
	"tts.mp3_poll_interval":      "MP3_POLL_INTERVAL",
	"worker.id":                  "WORKER_ID",
	"worker.max_retries":         "MAX_RETRIES",
	"worker.gpu_limit":           "WORKER_GPU_LIMIT",
	"worker.heartbeat_interval":  "HEARTBEAT_INTERVAL",
	"watchdog.threshold_minutes": "WATCHDOG_THRESHOLD_MINUTES",
	"watchdog.interval_seconds":  "WATCHDOG_INTERVAL_SECONDS",
	"api.port":                   "API_PORT",
	"log.path":                   "LOG_PATH",
	"log.level":                  "LOG_LEVEL",
}

// Load builds the configuration from defaults, an optional yaml file, and the
// environment (highest precedence).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "tts_library")
	v.SetDefault("s3.bucket", "audio-books")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.presign_expiration", 7*24*3600)
	v.SetDefault("tts.api_url", "http://127.0.0.1:8009/api/tts/synthesize")
	v.SetDefault("tts.speaker_audio_path", "./speaker.wav")
	v.SetDefault("tts.mp3_poll_attempts", 5)
	v.SetDefault("tts.mp3_poll_interval", 2)
	v.SetDefault("worker.max_retries", 5)
	v.SetDefault("worker.gpu_limit", 4)
	v.SetDefault("worker.heartbeat_interval", 10)
	v.SetDefault("watchdog.threshold_minutes", 5)
	v.SetDefault("watchdog.interval_seconds", 60)
	v.SetDefault("log.level", "info")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Worker.ID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		c.Worker.ID = "worker-" + hostname
	}

	// The heartbeat must tick well inside the watchdog threshold; 5s is the
	// floor regardless of configuration.
	if c.Worker.HeartbeatInterval < 5 {
		c.Worker.HeartbeatInterval = 5
	}

	if c.Worker.GPULimit < 1 {
		c.Worker.GPULimit = 1
	}

	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}

	if c.Watchdog.ThresholdMinutes < 1 {
		return fmt.Errorf("watchdog threshold must be at least 1 minute")
	}

	return nil
}

// DSN returns the pgx connection string, preferring DATABASE_URL over the
// individual DB_* parts.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Name)
}

// LoadEnvFile loads a dotenv-style file into the process environment without
// overriding variables that are already set. Missing files are not an error:
// the environment alone is a valid configuration source.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not open env file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
	return scanner.Err()
}
