package global

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the process needs, resolved once at startup.
type Config struct {
	HTTPAddr string

	MongoURI      string
	MongoDatabase string

	JWTSecret string
	JWTTTL    time.Duration

	// Redis is optional; presence tracking is disabled when Addr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Debug bool
}

// Load reads the environment (with .env support) into a Config.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8001"),
		MongoURI:      getenv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getenv("MONGODB_DATABASE", "chatwire"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTTTL:        24 * time.Hour,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.JWTTTL = d
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	cfg.Debug = os.Getenv("DEBUG") == "true"
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
