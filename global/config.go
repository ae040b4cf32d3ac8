package global

import (
	"os"

	"github.com/go-redis/redis_rate/v10"
	"gopkg.in/yaml.v3"
)

// Conf global config
var Conf Config

// Global rate limiter
var RateLimiter *redis_rate.Limiter

type Config struct {
	Version    string           `yaml:"version"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	Scheme     string           `yaml:"scheme"`
	Mode       string           `yaml:"mode"`
	CouchDB    CouchDBConfig    `yaml:"couchdb"`
	Redis      RedisConfig      `yaml:"redis"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Queue      QueueConfig      `yaml:"queue"`
	Auth       AuthConfig       `yaml:"auth"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

type CouchDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Username string `yaml:"username"`
}

type PrometheusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// AuthConfig verifies bearer tokens issued by the external identity service.
type AuthConfig struct {
	JwtSecret        string `yaml:"jwtSecret"`
	TokenExpiryHours int    `yaml:"tokenExpiryHours"`
}

type EncryptionConfig struct {
	// KdfIterations is the PBKDF2 iteration count advertised to new clients
	KdfIterations int `yaml:"kdfIterations"`
	// MaxShareTTLHours caps the lifetime of a user-to-user share grant
	MaxShareTTLHours int `yaml:"maxShareTtlHours"`
	// AIShareTTLMinutes caps the lifetime of an AI analysis grant
	AIShareTTLMinutes int `yaml:"aiShareTtlMinutes"`
	// AIUserID is the recipient identity of the AI analysis consumer
	AIUserID string `yaml:"aiUserId"`
	// AIPublicKey is the base64 X25519 public key of the AI analysis consumer
	AIPublicKey string `yaml:"aiPublicKey"`
	// EmailSaltHex salts the scrypt email lookup hashes
	EmailSaltHex string `yaml:"emailSaltHex"`
}

// LoadConfig reads a yaml configuration file into Conf (or any other target)
func LoadConfig(path string, conf *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, conf)
}
