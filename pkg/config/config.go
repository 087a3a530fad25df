package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Practice PracticeConfig
	Weekly   WeeklyTestConfig
	Lesson   LessonEvaluationConfig
	Pools    PoolCacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PracticeConfig supplies defaults for daily practice sessions.
type PracticeConfig struct {
	DefaultMaxQuestions     int
	DefaultTimeLimitMinutes int
}

// WeeklyTestConfig supplies defaults for weekly consolidation tests.
type WeeklyTestConfig struct {
	DefaultQuestionCount   int
	DefaultTotalMarks      float64
	DefaultDurationMinutes int
}

// LessonEvaluationConfig supplies defaults for lesson evaluations.
type LessonEvaluationConfig struct {
	DefaultQuestionCount   int
	DefaultTotalMarks      float64
	DefaultDurationMinutes int
}

// PoolCacheConfig governs caching of classifier strength pools.
type PoolCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Practice = PracticeConfig{
		DefaultMaxQuestions:     v.GetInt("PRACTICE_DEFAULT_MAX_QUESTIONS"),
		DefaultTimeLimitMinutes: v.GetInt("PRACTICE_DEFAULT_TIME_LIMIT_MINUTES"),
	}

	cfg.Weekly = WeeklyTestConfig{
		DefaultQuestionCount:   v.GetInt("WEEKLY_DEFAULT_QUESTION_COUNT"),
		DefaultTotalMarks:      v.GetFloat64("WEEKLY_DEFAULT_TOTAL_MARKS"),
		DefaultDurationMinutes: v.GetInt("WEEKLY_DEFAULT_DURATION_MINUTES"),
	}

	cfg.Lesson = LessonEvaluationConfig{
		DefaultQuestionCount:   v.GetInt("LESSON_DEFAULT_QUESTION_COUNT"),
		DefaultTotalMarks:      v.GetFloat64("LESSON_DEFAULT_TOTAL_MARKS"),
		DefaultDurationMinutes: v.GetInt("LESSON_DEFAULT_DURATION_MINUTES"),
	}

	cfg.Pools = PoolCacheConfig{
		Enabled: v.GetBool("ENABLE_POOL_CACHE"),
		TTL:     parseDuration(v.GetString("POOL_CACHE_TTL"), 15*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "mastery_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PRACTICE_DEFAULT_MAX_QUESTIONS", 10)
	v.SetDefault("PRACTICE_DEFAULT_TIME_LIMIT_MINUTES", 0)

	v.SetDefault("WEEKLY_DEFAULT_QUESTION_COUNT", 20)
	v.SetDefault("WEEKLY_DEFAULT_TOTAL_MARKS", 100)
	v.SetDefault("WEEKLY_DEFAULT_DURATION_MINUTES", 60)

	v.SetDefault("LESSON_DEFAULT_QUESTION_COUNT", 15)
	v.SetDefault("LESSON_DEFAULT_TOTAL_MARKS", 100)
	v.SetDefault("LESSON_DEFAULT_DURATION_MINUTES", 45)

	v.SetDefault("ENABLE_POOL_CACHE", false)
	v.SetDefault("POOL_CACHE_TTL", "15m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
