// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Report    ReportConfig    `mapstructure:"report"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Geocodio  GeocodioConfig  `mapstructure:"geocodio"`
	Store     StoreConfig     `mapstructure:"store"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScheduleConfig governs the daily cron trigger.
type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// ReportConfig points the exporter at the state report.
type ReportConfig struct {
	URL                  string        `mapstructure:"url"`
	Tab                  string        `mapstructure:"tab"`
	UserAgent            string        `mapstructure:"user_agent"`
	ProbeTimeout         time.Duration `mapstructure:"probe_timeout"`
	LoadTimeout          time.Duration `mapstructure:"load_timeout"`
	ExportTimeout        time.Duration `mapstructure:"export_timeout"`
	DownloadDir          string        `mapstructure:"download_dir"`
	DownloadPollInterval time.Duration `mapstructure:"download_poll_interval"`
}

// DatasetConfig names the published dataset objects.
type DatasetConfig struct {
	ObjectName    string `mapstructure:"object_name"`
	AddressesKey  string `mapstructure:"addresses_key"`
	FoodCodesKey  string `mapstructure:"food_codes_key"`
	CategoriesKey string `mapstructure:"categories_key"`
	MissingKey    string `mapstructure:"missing_key"`
}

// StorageConfig selects and parameterizes the blob backend.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
	S3          struct {
		Bucket string `mapstructure:"bucket"`
		Region string `mapstructure:"region"`
	} `mapstructure:"s3"`
	GCS struct {
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"gcs"`
	Local struct {
		BaseDir string `mapstructure:"base_dir"`
	} `mapstructure:"local"`
}

// GeocodioConfig configures the live address lookup client.
type GeocodioConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	QPS     float64       `mapstructure:"qps"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects run metadata persistence.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`
}

// PublisherConfig holds metadata for publish-subscribe notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// QueueConfig bounds the in-memory run queue.
type QueueConfig struct {
	Depth int `mapstructure:"depth"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// The external environment contract. These names predate this service and are
// shared with the hosting platform's secret store, so they are bound verbatim
// in addition to the INSPECTIONS_* prefixed forms.
var envBindings = map[string]string{
	"storage.s3.bucket":   "S3_BUCKET_NAME",
	"storage.s3.region":   "AWS_REGION",
	"dataset.object_name": "S3_FILE_NAME",
	"geocodio.api_key":    "GEOCODIO_API_KEY",
}

// Load builds a Config from disk/environment. An empty path skips the config
// file and relies on defaults plus environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSPECTIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)

	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "0 11 * * *")
	v.SetDefault("schedule.timezone", "UTC")

	v.SetDefault("report.url", "http://cedatareporting.pa.gov/reports/powerbi/Public/AG/FS/PBI/Food_Safety_Inspections")
	v.SetDefault("report.tab", "Violation Details")
	v.SetDefault("report.user_agent", "inspections-pipeline/1.0 (+https://github.com/keystonedata/inspections-pipeline)")
	v.SetDefault("report.probe_timeout", "30s")
	v.SetDefault("report.load_timeout", "45s")
	v.SetDefault("report.export_timeout", "120s")
	v.SetDefault("report.download_dir", "data/downloads")
	v.SetDefault("report.download_poll_interval", "500ms")

	v.SetDefault("dataset.object_name", "inspections.xlsx")
	v.SetDefault("dataset.addresses_key", "addresses.csv")
	v.SetDefault("dataset.food_codes_key", "food-codes.csv")
	v.SetDefault("dataset.categories_key", "categories.csv")
	v.SetDefault("dataset.missing_key", "missing_addresses.csv")

	v.SetDefault("storage.provider", "s3")
	v.SetDefault("storage.prefix", "2025/restaurant-inspections")
	v.SetDefault("storage.content_type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	v.SetDefault("storage.local.base_dir", "data/blobs")

	v.SetDefault("geocodio.base_url", "https://api.geocod.io/v1.7")
	v.SetDefault("geocodio.qps", 2.0)
	v.SetDefault("geocodio.timeout", "10s")

	v.SetDefault("store.provider", "memory")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("queue.depth", 16)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron must be set when schedule is enabled")
	}
	if c.Report.URL == "" {
		return fmt.Errorf("report.url must be set")
	}
	if c.Report.ExportTimeout <= 0 {
		return fmt.Errorf("report.export_timeout must be > 0")
	}
	if c.Dataset.ObjectName == "" {
		return fmt.Errorf("dataset.object_name must be set")
	}
	switch c.Storage.Provider {
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket must be set when provider is s3")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set when provider is gcs")
		}
	case "local", "memory", "noop":
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	switch c.Store.Provider {
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	switch c.Publisher.Provider {
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic must be set when provider is pubsub")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown publisher provider: %s", c.Publisher.Provider)
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Geocodio.QPS < 0 {
		return fmt.Errorf("geocodio.qps must be >= 0")
	}
	return nil
}

// Redacted returns a copy safe for diagnostic logging at startup.
func (c Config) Redacted() Config {
	out := c
	if out.Auth.APIKey != "" {
		out.Auth.APIKey = "[redacted]"
	}
	if out.Geocodio.APIKey != "" {
		out.Geocodio.APIKey = "[redacted]"
	}
	if out.Store.Postgres.DSN != "" {
		out.Store.Postgres.DSN = "[redacted]"
	}
	return out
}
