package core

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/venicebridges/internal/backend/auth"
	"github.com/jo-hoe/venicebridges/internal/backend/bridge"
	"github.com/jo-hoe/venicebridges/internal/backend/commandstructure"
	"github.com/jo-hoe/venicebridges/internal/backend/quota"
	"github.com/jo-hoe/venicebridges/internal/backend/storage"
	"github.com/jo-hoe/venicebridges/internal/logging"
)

const (
	StorageMemory = "memory"
	StorageS3     = "s3"

	CatalogGeoJSON        = "geojson"
	CatalogFeatureService = "featureservice"

	QuotaMemory   = "memory"
	QuotaRedis    = "redis"
	QuotaSQLite   = quota.DialectSQLite
	QuotaPostgres = quota.DialectPostgres
)

type StorageConfig struct {
	Type             string `yaml:"type" validate:"oneof=memory s3"`
	storage.S3Config `yaml:",inline"`
}

type CatalogConfig struct {
	Type            string              `yaml:"type" validate:"oneof=geojson featureservice"`
	Path            string              `yaml:"path"`
	URL             string              `yaml:"url"`
	Fields          bridge.FieldMapping `yaml:"fields"`
	Timeout         time.Duration       `yaml:"timeout" validate:"min=0"`
	RefreshInterval time.Duration       `yaml:"refreshInterval" validate:"min=0"`
}

type QuotaConfig struct {
	Type             string            `yaml:"type" validate:"oneof=memory redis sqlite postgres"`
	Limit            int               `yaml:"limit" validate:"min=1"`
	Redis            quota.RedisConfig `yaml:"redis"`
	ConnectionString string            `yaml:"connectionString"`
}

type UploadConfig struct {
	MaxBytes int64                            `yaml:"maxBytes" validate:"min=1"`
	Commands []commandstructure.CommandConfig `yaml:"commands" validate:"dive"`
}

type HitTestConfig struct {
	ToleranceMeters float64 `yaml:"toleranceMeters" validate:"gt=0"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
}

// ServerConfig controls how the client address is derived. Without trusted
// proxies X-Forwarded-For is ignored and the connection peer is the client.
type ServerConfig struct {
	TrustedProxies []string `yaml:"trustedProxies" validate:"dive,cidr"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

type ServiceConfig struct {
	Port      int             `yaml:"port" validate:"min=1,max=65535"`
	Server    ServerConfig    `yaml:"server"`
	Log       logging.Config  `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Quota     QuotaConfig     `yaml:"quota"`
	Admin     auth.Config     `yaml:"admin"`
	Upload    UploadConfig    `yaml:"upload"`
	HitTest   HitTestConfig   `yaml:"hitTest"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// envPattern matches ${NAME} references. Bare $NAME is left alone so bcrypt
// hashes survive.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return ParseConfig(data)
}

// ParseConfig expands ${VAR} references, parses YAML, fills defaults and
// validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Storage.Type == "" {
		c.Storage.Type = StorageMemory
	}
	if c.Catalog.Type == "" {
		c.Catalog.Type = CatalogGeoJSON
	}
	if c.Catalog.Type == CatalogGeoJSON && c.Catalog.Path == "" {
		c.Catalog.Path = "bridges.geojson"
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = 15 * time.Second
	}
	if c.Catalog.Fields == (bridge.FieldMapping{}) {
		c.Catalog.Fields = bridge.DefaultFieldMapping()
	}
	if c.Quota.Type == "" {
		c.Quota.Type = QuotaMemory
	}
	if c.Quota.Limit == 0 {
		c.Quota.Limit = quota.DefaultLimit
	}
	if c.Quota.Type == QuotaSQLite && c.Quota.ConnectionString == "" {
		c.Quota.ConnectionString = "quota.db"
	}
	if c.Admin.TokenTTL == 0 {
		c.Admin.TokenTTL = auth.DefaultTokenTTL
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 10 << 20
	}
	if len(c.Upload.Commands) == 0 {
		c.Upload.Commands = []commandstructure.CommandConfig{{Name: "JpegConverterCommand"}}
	}
	if c.HitTest.ToleranceMeters == 0 {
		c.HitTest.ToleranceMeters = 25
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) + 1
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Type == StorageS3 && c.Storage.Bucket == "" {
		return fmt.Errorf("invalid configuration: storage.bucket is required for s3 storage")
	}
	if c.Catalog.Type == CatalogFeatureService && c.Catalog.URL == "" {
		return fmt.Errorf("invalid configuration: catalog.url is required for the feature service catalog")
	}
	if c.Quota.Type == QuotaRedis && c.Quota.Redis.Addr == "" {
		return fmt.Errorf("invalid configuration: quota.redis.addr is required for redis quota")
	}
	if c.Quota.Type == QuotaPostgres && c.Quota.ConnectionString == "" {
		return fmt.Errorf("invalid configuration: quota.connectionString is required for postgres quota")
	}
	if err := validateCommands(c.Upload.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []commandstructure.CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command: %s (available: %s)", cmd.Name,
				strings.Join(commandstructure.DefaultRegistry.GetRegisteredNames(), ", "))
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
