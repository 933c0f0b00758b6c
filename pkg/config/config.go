package config

import (
	"fmt"
	"net/url"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names shared by the server and client commands
const (
	EnvPort          = "MERKLEVAULT_PORT"
	EnvUploadRPS     = "MERKLEVAULT_UPLOAD_RPS"
	EnvMaxBatchBytes = "MERKLEVAULT_MAX_BATCH_BYTES"
	EnvServerURL     = "MERKLEVAULT_SERVER_URL"
	EnvAnchorBackend = "MERKLEVAULT_ANCHOR_BACKEND"
	EnvAnchorPath    = "MERKLEVAULT_ANCHOR_PATH"
	EnvRedisAddr     = "MERKLEVAULT_REDIS_ADDR"
	EnvVerbose       = "MERKLEVAULT_VERBOSE"
)

// AnchorBackend selects where the client persists its trust anchors.
type AnchorBackend string

func (b AnchorBackend) String() string {
	return string(b)
}

const (
	AnchorBackendMemory AnchorBackend = "memory"
	AnchorBackendBadger AnchorBackend = "badger"
	AnchorBackendRedis  AnchorBackend = "redis"
)

// ParseAnchorBackend converts a string to an AnchorBackend.
func ParseAnchorBackend(s string) (AnchorBackend, error) {
	switch AnchorBackend(s) {
	case AnchorBackendMemory:
		return AnchorBackendMemory, nil
	case AnchorBackendBadger:
		return AnchorBackendBadger, nil
	case AnchorBackendRedis:
		return AnchorBackendRedis, nil
	default:
		return "", fmt.Errorf("unsupported anchor backend %q (supported: memory, badger, redis)", s)
	}
}

// ServerConfig is the complete configuration of the vault server.
type ServerConfig struct {
	Port int `json:"port"`

	// UploadRPS and UploadBurst bound how often the stored batch may be
	// replaced. Zero RPS disables the limiter.
	UploadRPS   float64 `json:"upload_rps"`
	UploadBurst int     `json:"upload_burst"`

	// MaxBatchBytes caps the size of one upload request body.
	MaxBatchBytes int64 `json:"max_batch_bytes"`

	Debug bool `json:"debug"`
}

// Validate validates the server configuration and fills defaults.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", c.Port)
	}
	if c.UploadRPS < 0 {
		return fmt.Errorf("upload rate limit cannot be negative, got %f", c.UploadRPS)
	}
	if c.UploadRPS > 0 && c.UploadBurst <= 0 {
		c.UploadBurst = 1
	}
	if c.MaxBatchBytes < 0 {
		return fmt.Errorf("max batch bytes cannot be negative, got %d", c.MaxBatchBytes)
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = 256 << 20 // 256 MiB
	}
	return nil
}

// ClientConfig is the configuration of the vault client command.
type ClientConfig struct {
	ServerURL     string        `json:"server_url"`
	AnchorBackend AnchorBackend `json:"anchor_backend"`
	AnchorPath    string        `json:"anchor_path"` // badger data dir
	RedisAddr     string        `json:"redis_addr"`
	Debug         bool          `json:"debug"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	var allErrors field.ErrorList

	if c.ServerURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("serverUrl"), "server URL is required"))
	} else if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		allErrors = append(allErrors, field.Invalid(field.NewPath("serverUrl"), c.ServerURL, "must be an absolute http(s) URL"))
	}

	switch c.AnchorBackend {
	case AnchorBackendMemory:
	case AnchorBackendBadger:
		if c.AnchorPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("anchorPath"), "anchor path is required for the badger backend"))
		}
	case AnchorBackendRedis:
		if c.RedisAddr == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddr"), "redis address is required for the redis backend"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("anchorBackend"), c.AnchorBackend,
			[]string{string(AnchorBackendMemory), string(AnchorBackendBadger), string(AnchorBackendRedis)}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
