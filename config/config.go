package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string        `mapstructure:"APP_PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`
	AdminToken        string        `mapstructure:"ADMIN_TOKEN"`
	MaxRequestsPerMin int           `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Storage.
	StoreDriver  string `mapstructure:"STORE_DRIVER"` // "mongo" or "memory"
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisEventsDB int    `mapstructure:"REDIS_EVENTS_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Push notifications. Empty disables FCM and falls back to log-only delivery.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`

	// Media uploads. An empty bucket disables signed upload URLs.
	StorageBucket string        `mapstructure:"STORAGE_BUCKET"`
	UploadURLTTL  time.Duration `mapstructure:"UPLOAD_URL_TTL"`

	// Workflow tuning.
	ServiceFeePercent     int           `mapstructure:"SERVICE_FEE_PERCENT"`
	BidTTL                time.Duration `mapstructure:"BID_TTL"`
	BidPriorityWindow     time.Duration `mapstructure:"BID_PRIORITY_WINDOW"`
	CodeAttemptsPerMinute int           `mapstructure:"CODE_ATTEMPTS_PER_MINUTE"`
	CodeAttemptBurst      int           `mapstructure:"CODE_ATTEMPT_BURST"`
	CompletionToken       string        `mapstructure:"COMPLETION_TOKEN"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", 30*24*time.Hour)
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 200)
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "gigchat")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_EVENTS_DB", 1)
	v.SetDefault("REDIS_QUEUE_DB", 2)
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("UPLOAD_URL_TTL", 15*time.Minute)
	v.SetDefault("SERVICE_FEE_PERCENT", 10)
	v.SetDefault("BID_TTL", 24*time.Hour)
	v.SetDefault("BID_PRIORITY_WINDOW", 2*time.Hour)
	v.SetDefault("CODE_ATTEMPTS_PER_MINUTE", 5)
	v.SetDefault("CODE_ATTEMPT_BURST", 5)
	v.SetDefault("COMPLETION_TOKEN", "*1#")
}

// Validate rejects settings the workflow cannot run with.
func (c Config) Validate() error {
	if c.BidPriorityWindow <= 0 || c.BidTTL <= 0 {
		return fmt.Errorf("bid timers must be positive")
	}
	if c.BidPriorityWindow >= c.BidTTL {
		return fmt.Errorf("priority window %s must end before bid expiry %s", c.BidPriorityWindow, c.BidTTL)
	}
	if c.ServiceFeePercent < 0 || c.ServiceFeePercent > 100 {
		return fmt.Errorf("service fee percent %d out of range", c.ServiceFeePercent)
	}
	if c.StoreDriver != "mongo" && c.StoreDriver != "memory" {
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.CompletionToken == "" {
		return fmt.Errorf("completion token must not be empty")
	}
	if c.Env == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
