package config

import (
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Astemirdum/club-lending/pkg/kafka"
	"github.com/Astemirdum/club-lending/pkg/logger"
	"github.com/Astemirdum/club-lending/pkg/postgres"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"LENDING_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"LENDING_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"10s"`
}

type Auth struct {
	// JWTSecret enables bearer token authentication; empty means identity headers are trusted.
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
}

type Config struct {
	Server        HTTPServer    `yaml:"server"`
	Kafka         kafka.Config  `yaml:"kafka"`
	Database      postgres.DB   `yaml:"db"`
	Log           logger.Log    `yaml:"log"`
	Auth          Auth          `yaml:"auth"`
	StorageDriver string        `yaml:"storage" envconfig:"STORAGE_DRIVER" default:"postgres"`
	SweepInterval time.Duration `yaml:"sweepInterval" envconfig:"SWEEP_INTERVAL" default:"1m"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options win over the environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		for _, op := range ops {
			op(&config)
		}
		if config.StorageDriver != StorageMemory && config.StorageDriver != StoragePostgres {
			log.Fatalf("NewConfig: unknown storage driver %q", config.StorageDriver)
		}
		cfg = &config
	})

	return cfg
}
