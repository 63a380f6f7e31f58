package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment     string
	Addr            string
	DatabaseURL     string
	MigrationsDir   string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SSEHeartbeat    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("API_ADDR", ":4000"),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://hookbin:hookbin@db:5432/hookbin?sslmode=disable"),
		MigrationsDir:   GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:  time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		SSEHeartbeat:    time.Duration(GetInt("SSE_HEARTBEAT_SECONDS", 15)) * time.Second,
	}
}
