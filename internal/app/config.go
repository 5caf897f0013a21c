package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/candidate-intel-backend/internal/data/db"
	"github.com/yungbote/candidate-intel-backend/internal/jobs/worker"
	"github.com/yungbote/candidate-intel-backend/internal/platform/envutil"
)

type Config struct {
	LogMode     string
	Port        string
	ServiceName string
	Environment string
	Version     string

	JWTSecretKey string
	CORSOrigins  []string

	DBDriver   string
	Postgres   db.PostgresConfig
	SQLitePath string

	EmbeddingDim   int
	VectorProvider VectorProvider
	PGVectorDSN    string

	SearchTopK          int
	SearchCandidatePool int
	ChatHistoryWindow   int

	Worker worker.Config

	RedisAddr    string
	RedisChannel string

	MetricsAddr string
	PromptsPath string

	ShutdownTimeout time.Duration
}

// LoadConfig reads the process environment once at startup.
func LoadConfig() (Config, error) {
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "candidate-intel"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),

		JWTSecretKey: envutil.String("JWT_SECRET_KEY", ""),
		CORSOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		DBDriver: strings.ToLower(envutil.String("DB_DRIVER", "postgres")),
		Postgres: db.PostgresConfig{
			Host:     envutil.String("POSTGRES_HOST", "localhost"),
			Port:     envutil.String("POSTGRES_PORT", "5432"),
			User:     envutil.String("POSTGRES_USER", "postgres"),
			Password: envutil.String("POSTGRES_PASSWORD", ""),
			Name:     envutil.String("POSTGRES_NAME", "candidate_intel"),
		},
		SQLitePath: envutil.String("SQLITE_PATH", "candidate_intel.db"),

		EmbeddingDim: envutil.PositiveInt("EMBEDDING_DIM", 1536),
		PGVectorDSN:  envutil.String("PGVECTOR_DSN", ""),

		SearchTopK:          envutil.PositiveInt("SEARCH_TOP_K", 10),
		SearchCandidatePool: envutil.PositiveInt("SEARCH_CANDIDATE_POOL", 100),
		ChatHistoryWindow:   envutil.Int("CHAT_HISTORY_WINDOW", 4),

		Worker: worker.ConfigFromEnv(),

		RedisAddr:    envutil.String("REDIS_ADDR", ""),
		RedisChannel: envutil.String("REDIS_CHANNEL", ""),

		MetricsAddr: envutil.String("METRICS_ADDR", ":9090"),
		PromptsPath: envutil.String("PROMPTS_YAML", ""),

		ShutdownTimeout: time.Duration(envutil.PositiveInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	provider, err := ParseVectorProvider(envutil.String("VECTOR_PROVIDER", string(VectorProviderMemory)))
	if err != nil {
		return Config{}, err
	}
	cfg.VectorProvider = provider

	if cfg.JWTSecretKey == "" {
		return Config{}, fmt.Errorf("JWT_SECRET_KEY is required")
	}
	switch cfg.DBDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", cfg.DBDriver)
	}
	if cfg.ChatHistoryWindow < 0 {
		cfg.ChatHistoryWindow = 0
	}
	if cfg.SearchCandidatePool < cfg.SearchTopK {
		cfg.SearchCandidatePool = cfg.SearchTopK
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
