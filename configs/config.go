package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicBaseURL string
	Endpoint      string
}

type Instagram struct {
	APIBase    string
	APIVersion string
	Timeout    time.Duration
}

type Fallback struct {
	UploadURL string
	ClientID  string
}

type Workers struct {
	PublishConcurrency  int
	InsightsConcurrency int
}

type Dispatcher struct {
	PublishSpec    string
	InsightsSpec   string
	TokenSweepSpec string
	LookBack       time.Duration
	LookAhead      time.Duration
	InsightsWindow time.Duration
	InsightsBatch  int
	InsightsPacing time.Duration
}

type Token struct {
	MinLength  int
	MockPrefix string
}

type Config struct {
	PostgresURI           string
	RedisURI              string
	HTTPAddr              string
	SecretKey             string
	Environment           string
	GoogleCredentialsFile string
	LocalMediaRoot        string
	FFmpegPath            string
	TempDir               string
	Instagram             Instagram
	R2                    R2
	Fallback              Fallback
	Workers               Workers
	Dispatcher            Dispatcher
	Token                 Token
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "localhost:6379"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":3000"),
		SecretKey:             getEnv("SECRET_KEY", ""),
		Environment:           getEnv("APP_ENV", "development"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		LocalMediaRoot:        getEnv("LOCAL_MEDIA_ROOT", "./media"),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		TempDir:               getEnv("TEMP_MEDIA_DIR", os.TempDir()),
		Instagram: Instagram{
			APIBase:    getEnv("INSTAGRAM_API_BASE", "https://graph.facebook.com"),
			APIVersion: getEnv("INSTAGRAM_API_VERSION", "v18.0"),
			Timeout:    getEnvDuration("INSTAGRAM_API_TIMEOUT", 30*time.Second),
		},
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", ""),
			PublicBaseURL: getEnv("R2_PUBLIC_BASE_URL", ""),
			Endpoint:      getEnv("R2_ENDPOINT", ""),
		},
		Fallback: Fallback{
			UploadURL: getEnv("FALLBACK_UPLOAD_URL", "https://api.imgur.com/3/upload"),
			ClientID:  getEnv("FALLBACK_UPLOAD_CLIENT_ID", ""),
		},
		Workers: Workers{
			PublishConcurrency:  getEnvInt("PUBLISH_WORKER_CONCURRENCY", 5),
			InsightsConcurrency: getEnvInt("INSIGHTS_WORKER_CONCURRENCY", 3),
		},
		Dispatcher: Dispatcher{
			PublishSpec:    getEnv("DISPATCH_SPEC", "@every 1m"),
			InsightsSpec:   getEnv("INSIGHTS_SPEC", "@every 6h"),
			TokenSweepSpec: getEnv("TOKEN_SWEEP_SPEC", "@every 1h"),
			LookBack:       getEnvDuration("DISPATCH_LOOK_BACK", time.Minute),
			LookAhead:      getEnvDuration("DISPATCH_LOOK_AHEAD", 5*time.Minute),
			InsightsWindow: getEnvDuration("INSIGHTS_WINDOW", 30*24*time.Hour),
			InsightsBatch:  getEnvInt("INSIGHTS_BATCH", 100),
			InsightsPacing: getEnvDuration("INSIGHTS_PACING", time.Second),
		},
		Token: Token{
			MinLength:  getEnvInt("TOKEN_MIN_LENGTH", 50),
			MockPrefix: getEnv("TOKEN_MOCK_PREFIX", "refreshed_"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
