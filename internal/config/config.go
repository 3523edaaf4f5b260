package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	DB         DBConfig
	MinIO      MinIOConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Server     ServerConfig
	Gotenberg  GotenbergConfig
	Mail       MailConfig
	Admin      AdminConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// EncryptionConfig keys the at-rest encryption of stored TOTP secrets.
// It is independent of the JWT signing secret so the two can rotate
// separately.
type EncryptionConfig struct {
	Key string
}

type ServerConfig struct {
	Port string
}

type GotenbergConfig struct {
	URL string
}

type MailConfig struct {
	SendgridKey string
	FromEmail   string
	FromName    string
}

type AdminConfig struct {
	Email    string
	Password string
}

// Load reads the environment once at startup. JWT_SECRET has no fallback on
// purpose: running with a guessable signing key is worse than not starting.
func Load() (*Config, error) {
	cfg := &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "academia"),
			Password: getEnv("DB_PASSWORD", "academia_secret"),
			Name:     getEnv("DB_NAME", "academia"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "localhost:9000")),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "academia"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "academia_secret"),
			Bucket:         getEnv("MINIO_BUCKET", "academia"),
			UseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Encryption: EncryptionConfig{
			Key: os.Getenv("ENCRYPTION_KEY"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Gotenberg: GotenbergConfig{
			URL: getEnv("GOTENBERG_URL", "http://localhost:3000"),
		},
		Mail: MailConfig{
			SendgridKey: os.Getenv("SENDGRID_API_KEY"),
			FromEmail:   getEnv("MAIL_FROM_EMAIL", "noreply@academia.local"),
			FromName:    getEnv("MAIL_FROM_NAME", "Academia"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@academia.local"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
