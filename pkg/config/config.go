package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	SQLite        SQLiteConfig
	Redis         RedisConfig
	Session       SessionConfig
	Auth          AuthConfig
	LLM           LLMConfig
	Transcription TranscriptionConfig
	Speech        SpeechConfig
	Storage       StorageConfig
	Interview     InterviewConfig
	RateLimit     RateLimitConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     int
	WriteTimeout    int
	BodyLimit       int
	AllowedOrigins  []string
	ShutdownTimeout int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SessionConfig struct {
	TTLMinutes    int
	SweepSchedule string
}

func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

type AuthConfig struct {
	Provider       string
	JWTSecret      string
	Audience       string
	ClerkPublicKey string
	ClerkIssuer    string
	MaxTokenLength int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type TranscriptionConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
}

type SpeechConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
}

type StorageConfig struct {
	Driver         string
	LocalPath      string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

type InterviewConfig struct {
	MinAudioBytes      int
	MaxAudioBytes      int
	MinTranscriptChars int
	MaxFollowups       int
	TempDir            string
	Language           string
	Voice              string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads an optional .env file, then config.yaml, then MOCKMATE_*
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/mockmate")

	return load(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("MOCKMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Auth.Provider {
	case "supabase":
		if len(c.Auth.JWTSecret) < 32 {
			return errors.New("auth.jwtSecret must be at least 32 characters")
		}
	case "clerk":
		if c.Auth.ClerkPublicKey == "" {
			return errors.New("auth.clerkPublicKey is required for the clerk provider")
		}
	default:
		return fmt.Errorf("unknown auth provider %q", c.Auth.Provider)
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Storage.Driver {
	case "local", "supabase", "none":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Interview.MinAudioBytes <= 0 || c.Interview.MaxAudioBytes <= c.Interview.MinAudioBytes {
		return errors.New("interview audio bounds are invalid")
	}
	if c.Session.TTLMinutes <= 0 {
		return errors.New("session.ttlMinutes must be positive")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdownTimeout", 30)

	v.SetDefault("sqlite.path", "./data/mockmate.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttlMinutes", 120)
	v.SetDefault("session.sweepSchedule", "@every 10m")

	v.SetDefault("auth.provider", "supabase")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("auth.maxTokenLength", 4096)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 1500)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("transcription.baseURL", "https://api.groq.com/openai/v1")
	v.SetDefault("transcription.model", "whisper-large-v3-turbo")
	v.SetDefault("transcription.timeoutSec", 60)

	v.SetDefault("speech.model", "tts-1")
	v.SetDefault("speech.timeoutSec", 30)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.localPath", "./data/objects")
	v.SetDefault("storage.supabaseBucket", "interview-audio")

	v.SetDefault("interview.minAudioBytes", 100)
	v.SetDefault("interview.maxAudioBytes", 10*1024*1024)
	v.SetDefault("interview.minTranscriptChars", 3)
	v.SetDefault("interview.maxFollowups", 1)
	v.SetDefault("interview.language", "en")
	v.SetDefault("interview.voice", "professional_female")

	v.SetDefault("rateLimit.requestsPerSecond", 5)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
