package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Realtime RealtimeConfig
}

var (
	ConfigInstance *Config
	once           sync.Once
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URI builds the postgres DSN from the individual fields.
func (d DatabaseConfig) URI() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether event export is configured at all.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

// RealtimeConfig tunes the delivery subsystem. Defaults match the
// documented wire contract; tests override them to run fast.
type RealtimeConfig struct {
	FanoutBatchSize  int
	FanoutBatchPause time.Duration
	SendBufferSize   int
}

func LoadConfig() (*Config, error) {
	once.Do(func() {
		viper.SetDefault("GEOFEED_HOST", "")
		viper.SetDefault("GEOFEED_PORT", "8080")
		viper.SetDefault("GEOFEED_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("GEOFEED_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("GEOFEED_IDLE_TIMEOUT", 60*time.Second)
		viper.SetDefault("GEOFEED_JWT_SECRET", "secret")
		viper.SetDefault("GEOFEED_JWT_EXPIRE", "24h")
		viper.SetDefault("GEOFEED_FANOUT_BATCH_SIZE", 100)
		viper.SetDefault("GEOFEED_FANOUT_BATCH_PAUSE", 5*time.Millisecond)
		viper.SetDefault("GEOFEED_SEND_BUFFER_SIZE", 256)
		viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_MAX_RETRIES", 3)
		viper.SetDefault("REDIS_POOL_SIZE", 100)
		viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
		viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("KAFKA_BROKERS", []string{})
		viper.SetDefault("KAFKA_TOPIC", "")
		viper.SetDefault("POSTGRES_USER", "postgres")
		viper.SetDefault("POSTGRES_PASSWORD", "password")
		viper.SetDefault("POSTGRES_HOST", "localhost")
		viper.SetDefault("POSTGRES_PORT", "5432")
		viper.SetDefault("POSTGRES_DB", "geofeed")
		viper.SetDefault("POSTGRES_SSLMODE", "disable")
		viper.AutomaticEnv()

		ConfigInstance = &Config{
			Server: ServerConfig{
				Host:         viper.GetString("GEOFEED_HOST"),
				Port:         viper.GetString("GEOFEED_PORT"),
				ReadTimeout:  viper.GetDuration("GEOFEED_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("GEOFEED_WRITE_TIMEOUT"),
				IdleTimeout:  viper.GetDuration("GEOFEED_IDLE_TIMEOUT"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("POSTGRES_HOST"),
				Port:     viper.GetString("POSTGRES_PORT"),
				User:     viper.GetString("POSTGRES_USER"),
				Password: viper.GetString("POSTGRES_PASSWORD"),
				DBName:   viper.GetString("POSTGRES_DB"),
				SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
			},
			Redis: RedisConfig{
				Addr:         viper.GetString("REDIS_ADDR"),
				Password:     viper.GetString("REDIS_PASSWORD"),
				DB:           viper.GetInt("REDIS_DB"),
				MaxRetries:   viper.GetInt("REDIS_MAX_RETRIES"),
				DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			},
			Kafka: KafkaConfig{
				Brokers: viper.GetStringSlice("KAFKA_BROKERS"),
				Topic:   viper.GetString("KAFKA_TOPIC"),
			},
			JWT: JWTConfig{
				Secret:         viper.GetString("GEOFEED_JWT_SECRET"),
				ExpirationTime: viper.GetDuration("GEOFEED_JWT_EXPIRE"),
			},
			Realtime: RealtimeConfig{
				FanoutBatchSize:  viper.GetInt("GEOFEED_FANOUT_BATCH_SIZE"),
				FanoutBatchPause: viper.GetDuration("GEOFEED_FANOUT_BATCH_PAUSE"),
				SendBufferSize:   viper.GetInt("GEOFEED_SEND_BUFFER_SIZE"),
			},
		}
	})

	return ConfigInstance, nil
}
