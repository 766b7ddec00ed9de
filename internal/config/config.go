package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	S3         S3Config         `mapstructure:"s3"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Internal   InternalConfig   `mapstructure:"internal"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Program    ProgramConfig    `mapstructure:"program"`
	Zone       ZoneConfig       `mapstructure:"zone"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
}

type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	Mode        string   `mapstructure:"mode"` // gin mode: debug, release, test
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // "mongo" or "memory"
	URI          string `mapstructure:"uri"`
	Name         string `mapstructure:"name"`
	Transactions bool   `mapstructure:"transactions"` // Requires a replica set
}

type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// InternalConfig guards the routes called by other backend services
// (the payment collaborator posting enrollments).
type InternalConfig struct {
	AuthToken string `mapstructure:"auth_token"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type ProgramConfig struct {
	Timezone     string `mapstructure:"timezone"`
	AllowReplace bool   `mapstructure:"allow_replace"`
}

// Location resolves the program timezone.
func (p ProgramConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid program.timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

type ZoneConfig struct {
	// MinWeeks is indexed by zone number - 1.
	MinWeeks            []int   `mapstructure:"min_weeks"`
	PoorComplianceBelow float64 `mapstructure:"poor_compliance_below"`
}

// MinWeeksFor returns the minimum weeks for zone n, falling back to the
// last configured value.
func (z ZoneConfig) MinWeeksFor(n int) int {
	if len(z.MinWeeks) == 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	if n > len(z.MinWeeks) {
		return z.MinWeeks[len(z.MinWeeks)-1]
	}
	return z.MinWeeks[n-1]
}

type ComplianceConfig struct {
	ExcellentAtLeast float64 `mapstructure:"excellent_at_least"`
	GoodAtLeast      float64 `mapstructure:"good_at_least"`
}

type NotifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"` // Empty disables the rotating file core
	Development bool   `mapstructure:"development"`
}

type TemplatesConfig struct {
	SeedDir string `mapstructure:"seed_dir"`
}

// Validate checks the cross-field constraints viper cannot express.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("database.driver must be mongo or memory, got %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := c.Program.Location(); err != nil {
		return err
	}
	if len(c.Zone.MinWeeks) == 0 {
		return fmt.Errorf("zone.min_weeks must not be empty")
	}
	for i, w := range c.Zone.MinWeeks {
		if w < 0 {
			return fmt.Errorf("zone.min_weeks[%d] must not be negative", i)
		}
	}
	if c.Zone.PoorComplianceBelow < 0 || c.Zone.PoorComplianceBelow > 1 {
		return fmt.Errorf("zone.poor_compliance_below must be within [0, 1]")
	}
	if !(c.Zone.PoorComplianceBelow <= c.Compliance.GoodAtLeast && c.Compliance.GoodAtLeast <= c.Compliance.ExcellentAtLeast) {
		return fmt.Errorf("compliance bands must satisfy poor_compliance_below <= good_at_least <= excellent_at_least")
	}
	return nil
}

// setDefaults registers every default on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "wellness_program")
	v.SetDefault("database.transactions", false)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.presign_ttl", "15m")
	// Empty defaults are still needed so Unmarshal sees env-only keys.
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("internal.auth_token", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10s")
	v.SetDefault("program.timezone", "UTC")
	v.SetDefault("program.allow_replace", true)
	v.SetDefault("zone.min_weeks", []int{2, 2, 2, 2, 3})
	v.SetDefault("zone.poor_compliance_below", 0.5)
	v.SetDefault("compliance.excellent_at_least", 0.9)
	v.SetDefault("compliance.good_at_least", 0.75)
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.development", false)
	v.SetDefault("templates.seed_dir", "")
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Nested keys map to env vars, e.g. zone.poor_compliance_below -> ZONE_POOR_COMPLIANCE_BELOW
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file is optional; defaults and env vars are enough.
		err = nil
	} else if err != nil {
		return
	}

	// Duration strings ("15m", "1h") decode directly into time.Duration fields.
	if err = v.Unmarshal(&config); err != nil {
		return
	}
	if err = config.Validate(); err != nil {
		return
	}
	return config, nil
}
