package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. RAPPORT_SERVER_PORT.
const EnvPrefix = "RAPPORT"

// Config holds all rapport configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Dynamo   DynamoConfig   `mapstructure:"dynamo" yaml:"dynamo"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Scoring  ScoringConfig  `mapstructure:"scoring" yaml:"scoring"`
}

type ServerConfig struct {
	Bind           string   `mapstructure:"bind" yaml:"bind"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	URL            string   `mapstructure:"url" yaml:"url"` // used by hook clients
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "dynamodb"
	Path   string `mapstructure:"path" yaml:"path"`
}

type DynamoConfig struct {
	Region            string `mapstructure:"region" yaml:"region"`
	Endpoint          string `mapstructure:"endpoint" yaml:"endpoint"` // optional, e.g. DynamoDB Local
	InteractionsTable string `mapstructure:"interactions_table" yaml:"interactions_table"`
	SessionsTable     string `mapstructure:"sessions_table" yaml:"sessions_table"`
	UsersTable        string `mapstructure:"users_table" yaml:"users_table"`
}

type ExportConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Region string `mapstructure:"region" yaml:"region"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`   // debug|info|warn|error
	Format    string `mapstructure:"format" yaml:"format"` // text|json
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"`
}

// Weights are the per-kind multipliers applied to decayed interactions.
type Weights struct {
	Reaction float64 `mapstructure:"reaction" yaml:"reaction"`
	Mention  float64 `mapstructure:"mention" yaml:"mention"`
	Reply    float64 `mapstructure:"reply" yaml:"reply"`
}

// Thresholds are inclusive lower bounds on the mutual score.
type Thresholds struct {
	Weak     float64 `mapstructure:"weak" yaml:"weak"`
	Moderate float64 `mapstructure:"moderate" yaml:"moderate"`
	Strong   float64 `mapstructure:"strong" yaml:"strong"`
}

// Rank modes.
const (
	RankModeCounts    = "counts"
	RankModeComposite = "composite"
)

// ScoringConfig is the single weighting scheme used by the engine.
type ScoringConfig struct {
	Weights Weights `mapstructure:"weights" yaml:"weights"`

	// VCWeight is the number of points awarded for spending 100% of one's
	// voice time with the other user.
	VCWeight float64 `mapstructure:"vc_weight" yaml:"vc_weight"`
	// VCCapPoints caps the voice contribution. Zero disables the cap.
	VCCapPoints float64 `mapstructure:"vc_cap_points" yaml:"vc_cap_points"`

	DecayWindowDays float64 `mapstructure:"decay_window_days" yaml:"decay_window_days"`
	DecayTau        float64 `mapstructure:"decay_tau" yaml:"decay_tau"`
	DecayFloor      float64 `mapstructure:"decay_floor" yaml:"decay_floor"`

	Thresholds Thresholds `mapstructure:"thresholds" yaml:"thresholds"`

	InteractionCap int `mapstructure:"interaction_cap" yaml:"interaction_cap"`
	SessionCap     int `mapstructure:"session_cap" yaml:"session_cap"`

	RankWindowDays int    `mapstructure:"rank_window_days" yaml:"rank_window_days"`
	RankMode       string `mapstructure:"rank_mode" yaml:"rank_mode"`
	RankCandidates int    `mapstructure:"rank_candidates" yaml:"rank_candidates"`

	// CandidateLimit bounds each candidate source in TopRelationships.
	CandidateLimit int `mapstructure:"candidate_limit" yaml:"candidate_limit"`
	Concurrency    int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:           "127.0.0.1",
			Port:           37780,
			AllowedOrigins: []string{"*"},
			URL:            "http://127.0.0.1:37780",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "", // resolved at runtime via store.DefaultDBPath()
		},
		Dynamo: DynamoConfig{
			InteractionsTable: "RapportInteractions",
			SessionsTable:     "RapportVoiceSessions",
			UsersTable:        "RapportUsers",
		},
		Export: ExportConfig{
			Prefix: "reports",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Scoring: DefaultScoring(),
	}
}

// DefaultScoring returns the relative-VC weighting scheme.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Weights: Weights{
			Reaction: 1.0,
			Mention:  2.0,
			Reply:    3.0,
		},
		VCWeight:        50,
		DecayWindowDays: 90,
		DecayTau:        30,
		DecayFloor:      0.1,
		Thresholds: Thresholds{
			Weak:     10,
			Moderate: 30,
			Strong:   60,
		},
		InteractionCap: 1000,
		SessionCap:     500,
		RankWindowDays: 90,
		RankMode:       RankModeCounts,
		RankCandidates: 50,
		CandidateLimit: 20,
		Concurrency:    4,
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "dynamodb":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

// Validate checks the weighting scheme.
func (s *ScoringConfig) Validate() error {
	var errs []error
	if s.Weights.Reaction < 0 || s.Weights.Mention < 0 || s.Weights.Reply < 0 {
		errs = append(errs, errors.New("weights must be non-negative"))
	}
	if s.VCWeight < 0 || s.VCCapPoints < 0 {
		errs = append(errs, errors.New("vc_weight and vc_cap_points must be non-negative"))
	}
	if s.DecayWindowDays < 0 {
		errs = append(errs, errors.New("decay_window_days must be non-negative"))
	}
	if s.DecayTau <= 0 {
		errs = append(errs, errors.New("decay_tau must be positive"))
	}
	if s.DecayFloor <= 0 || s.DecayFloor > 1 {
		errs = append(errs, errors.New("decay_floor must be in (0, 1]"))
	}
	t := s.Thresholds
	if t.Weak <= 0 || t.Weak >= t.Moderate || t.Moderate >= t.Strong {
		errs = append(errs, fmt.Errorf("thresholds must ascend: weak %.2f, moderate %.2f, strong %.2f", t.Weak, t.Moderate, t.Strong))
	}
	if s.InteractionCap <= 0 || s.SessionCap <= 0 {
		errs = append(errs, errors.New("interaction_cap and session_cap must be positive"))
	}
	if s.RankWindowDays <= 0 {
		errs = append(errs, errors.New("rank_window_days must be positive"))
	}
	if s.RankMode != RankModeCounts && s.RankMode != RankModeComposite {
		errs = append(errs, fmt.Errorf("unknown rank_mode %q", s.RankMode))
	}
	if s.RankCandidates <= 0 || s.CandidateLimit <= 0 || s.Concurrency <= 0 {
		errs = append(errs, errors.New("rank_candidates, candidate_limit and concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// SetDefaults registers every default with v so environment overrides and
// partial config files resolve against them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("dynamo.region", d.Dynamo.Region)
	v.SetDefault("dynamo.endpoint", d.Dynamo.Endpoint)
	v.SetDefault("dynamo.interactions_table", d.Dynamo.InteractionsTable)
	v.SetDefault("dynamo.sessions_table", d.Dynamo.SessionsTable)
	v.SetDefault("dynamo.users_table", d.Dynamo.UsersTable)
	v.SetDefault("export.bucket", d.Export.Bucket)
	v.SetDefault("export.prefix", d.Export.Prefix)
	v.SetDefault("export.region", d.Export.Region)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.add_source", d.Logging.AddSource)

	s := d.Scoring
	v.SetDefault("scoring.weights.reaction", s.Weights.Reaction)
	v.SetDefault("scoring.weights.mention", s.Weights.Mention)
	v.SetDefault("scoring.weights.reply", s.Weights.Reply)
	v.SetDefault("scoring.vc_weight", s.VCWeight)
	v.SetDefault("scoring.vc_cap_points", s.VCCapPoints)
	v.SetDefault("scoring.decay_window_days", s.DecayWindowDays)
	v.SetDefault("scoring.decay_tau", s.DecayTau)
	v.SetDefault("scoring.decay_floor", s.DecayFloor)
	v.SetDefault("scoring.thresholds.weak", s.Thresholds.Weak)
	v.SetDefault("scoring.thresholds.moderate", s.Thresholds.Moderate)
	v.SetDefault("scoring.thresholds.strong", s.Thresholds.Strong)
	v.SetDefault("scoring.interaction_cap", s.InteractionCap)
	v.SetDefault("scoring.session_cap", s.SessionCap)
	v.SetDefault("scoring.rank_window_days", s.RankWindowDays)
	v.SetDefault("scoring.rank_mode", s.RankMode)
	v.SetDefault("scoring.rank_candidates", s.RankCandidates)
	v.SetDefault("scoring.candidate_limit", s.CandidateLimit)
	v.SetDefault("scoring.concurrency", s.Concurrency)
}

// Load resolves configuration from defaults, an optional YAML file and
// RAPPORT_* environment variables, in increasing order of precedence.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration as YAML to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
