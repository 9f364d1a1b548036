package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/pricing-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Master  MasterConfig  `yaml:"master" mapstructure:"master"`
	Merge   MergeConfig   `yaml:"merge" mapstructure:"merge"`
	Backup  BackupConfig  `yaml:"backup" mapstructure:"backup"`
	Mapping MappingConfig `yaml:"mapping" mapstructure:"mapping"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// MasterConfig locates the master table.
type MasterConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	Source          string `yaml:"source" mapstructure:"source"` // URL to fetch the master from before merging
	Sheet           string `yaml:"sheet" mapstructure:"sheet"`
	CreateIfMissing bool   `yaml:"create_if_missing" mapstructure:"create_if_missing"`
}

// MergeConfig holds merge defaults; CLI flags override them.
type MergeConfig struct {
	Mode           string `yaml:"mode" mapstructure:"mode"`
	Output         string `yaml:"output" mapstructure:"output"`
	Strict         bool   `yaml:"strict" mapstructure:"strict"`
	SkipDuplicates bool   `yaml:"skip_duplicates" mapstructure:"skip_duplicates"`
}

// BackupConfig configures the backup manager.
type BackupConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Always bool   `yaml:"always" mapstructure:"always"`
}

// MappingConfig configures rule-set selection.
type MappingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	RulesFile           string  `yaml:"rules_file" mapstructure:"rules_file"`
	DefaultRuleSet      string  `yaml:"default_rule_set" mapstructure:"default_rule_set"`
}

// InputConfig configures how vendor files are read.
type InputConfig struct {
	Sheet       string `yaml:"sheet" mapstructure:"sheet"`
	PreferSheet string `yaml:"prefer_sheet" mapstructure:"prefer_sheet"` // words of the default sheet name when sheet is empty
	SkipRows    int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	HeaderScan  int    `yaml:"header_scan" mapstructure:"header_scan"` // rows searched for the header
}

// FetchConfig configures remote master downloads.
type FetchConfig struct {
	Dir         string  `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Token       string  `yaml:"token" mapstructure:"token"`
}

// Timeout returns the per-request timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Disabled    bool   `yaml:"disabled" mapstructure:"disabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("master.path", "Master-Table.xlsx")
	v.SetDefault("master.source", "")
	v.SetDefault("master.sheet", "")
	v.SetDefault("master.create_if_missing", false)
	v.SetDefault("merge.mode", string(model.WriteModeNewFile))
	v.SetDefault("merge.output", "")
	v.SetDefault("merge.strict", false)
	v.SetDefault("merge.skip_duplicates", false)
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.always", false)
	v.SetDefault("mapping.similarity_threshold", 0.6)
	v.SetDefault("mapping.rules_file", "")
	v.SetDefault("mapping.default_rule_set", "")
	v.SetDefault("input.sheet", "")
	v.SetDefault("input.prefer_sheet", "matrix table")
	v.SetDefault("input.skip_rows", 0)
	v.SetDefault("input.header_scan", 30)
	v.SetDefault("fetch.dir", ".")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "pricing-cli/1.0")
	v.SetDefault("fetch.rate_per_sec", 0)
	v.SetDefault("fetch.token", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.disabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []string

	if c.Master.Path == "" && c.Master.Source == "" {
		errs = append(errs, "master.path or master.source is required")
	}
	if !model.WriteMode(c.Merge.Mode).Valid() {
		errs = append(errs, "merge.mode must be new_file or in_place, got "+c.Merge.Mode)
	}
	if c.Mapping.SimilarityThreshold <= 0 || c.Mapping.SimilarityThreshold > 1 {
		errs = append(errs, "mapping.similarity_threshold must be in (0, 1]")
	}
	if c.Input.SkipRows < 0 {
		errs = append(errs, "input.skip_rows must be >= 0")
	}
	if c.Input.HeaderScan < 0 {
		errs = append(errs, "input.header_scan must be >= 0")
	}
	if c.Fetch.TimeoutSecs < 1 {
		errs = append(errs, "fetch.timeout_secs must be >= 1")
	}
	if c.Fetch.MaxRetries < 1 {
		errs = append(errs, "fetch.max_retries must be >= 1")
	}
	if c.Fetch.RatePerSec < 0 {
		errs = append(errs, "fetch.rate_per_sec must be >= 0")
	}
	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if !c.Store.Disabled && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver (PRICING_STORE_DATABASE_URL)")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres, got "+c.Store.Driver)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
