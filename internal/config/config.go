package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string        `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	TCPHost         string        `yaml:"tcp_host" env:"TCP_HOST" env-default:"0.0.0.0"`
	TCPPort         int           `yaml:"tcp_port" env:"TCP_PORT" env-default:"12345"`
	ApiHost         string        `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	ApiPort         int           `yaml:"api_port" env:"API_PORT" env-default:"8080"`
	JwtSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"secret42212"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"0s" env-description:"Per-command read deadline, 0 disables"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Load reads configuration from the given yaml file plus environment
// overrides, or from environment and defaults alone when path is empty.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	path := fetchConfigPath()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			panic("config file does not exist: " + path)
		}
	}

	cfg, err := Load(path)
	if err != nil {
		panic("Failed to read config" + err.Error())
	}

	return cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
