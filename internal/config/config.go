package config

import (
	"log"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Host      string
	Port      string
	JWTSecret string

	RedisURL string

	MongoURI string
	MongoDB  string

	// Optional Kafka audit sink; disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string
}

var (
	instance *Config
	once     sync.Once
)

// Load reads configuration from a .env file and the environment, with
// defaults for local development.
func Load() *Config {
	once.Do(func() {
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
		viper.AddConfigPath(".")

		viper.SetDefault("GATEWAY_HOST", "0.0.0.0")
		viper.SetDefault("GATEWAY_PORT", "8080")
		viper.SetDefault("GATEWAY_JWT_SECRET", "secret")
		viper.SetDefault("REDIS_URL", "redis://127.0.0.1:6379/0")
		viper.SetDefault("MONGO_URI", "mongodb://127.0.0.1:27017")
		viper.SetDefault("MONGO_DB", "mail")
		viper.SetDefault("KAFKA_BROKERS", "")
		viper.SetDefault("KAFKA_TOPIC", "gateway-events")
		viper.AutomaticEnv()

		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: Error reading .env file: %v", err)
			log.Printf("Using environment variables and defaults")
		}

		var brokers []string
		if raw := viper.GetString("KAFKA_BROKERS"); raw != "" {
			for _, b := range strings.Split(raw, ",") {
				brokers = append(brokers, strings.TrimSpace(b))
			}
		}

		instance = &Config{
			Host:         viper.GetString("GATEWAY_HOST"),
			Port:         viper.GetString("GATEWAY_PORT"),
			JWTSecret:    viper.GetString("GATEWAY_JWT_SECRET"),
			RedisURL:     viper.GetString("REDIS_URL"),
			MongoURI:     viper.GetString("MONGO_URI"),
			MongoDB:      viper.GetString("MONGO_DB"),
			KafkaBrokers: brokers,
			KafkaTopic:   viper.GetString("KAFKA_TOPIC"),
		}
	})
	return instance
}
