package common

import (
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"os"
	"strings"
)

type Config struct {
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBAddress  string `mapstructure:"DB_ADDRESS"`
	DBName     string `mapstructure:"DB_NAME"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPCompress bool   `mapstructure:"AMQP_COMPRESS"`

	ProducerAddr   string `mapstructure:"PRODUCER_ADDR"`
	ConsumerFEPort string `mapstructure:"CONSUMER_FE_PORT"`
	IngestWorkers  uint   `mapstructure:"INGEST_WORKERS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func DefaultConfig() Config {
	return Config{
		AMQPCompress:   true,
		ProducerAddr:   ":8080",
		ConsumerFEPort: "8081",
		IngestWorkers:  1,
		LogLevel:       "info",
	}
}

// LoadConfig loads the given dotenv files (".env" when none are given) into
// the process environment and decodes the environment on top of the defaults.
// Variables that are already set win over the files.
func LoadConfig(files ...string) (Config, error) {
	config := DefaultConfig()

	if err := godotenv.Load(files...); err != nil {
		return config, err
	}

	env := map[string]interface{}{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			env[k] = v
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return config, err
	}

	if err = decoder.Decode(env); err != nil {
		return config, err
	}

	return config, nil
}

func (c Config) MySQL() *mysql.Config {
	return &mysql.Config{
		User:                 c.DBUser,
		Passwd:               c.DBPassword,
		Addr:                 c.DBAddress,
		DBName:               c.DBName,
		Collation:            "utf8mb4_general_ci",
		Net:                  "tcp",
		AllowNativePasswords: true,
		ParseTime:            true,
	}
}
