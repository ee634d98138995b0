package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
admin:
  username: admin
  password: laguna
  jwtSecret: secret
`

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, CatalogGeoJSON, cfg.Catalog.Type)
	assert.Equal(t, "bridges.geojson", cfg.Catalog.Path)
	assert.Equal(t, "birth_certificate_birthID", cfg.Catalog.Fields.ID)
	assert.Equal(t, QuotaMemory, cfg.Quota.Type)
	assert.Equal(t, 4, cfg.Quota.Limit)
	assert.Equal(t, time.Hour, cfg.Admin.TokenTTL)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	require.Len(t, cfg.Upload.Commands, 1)
	assert.Equal(t, "JpegConverterCommand", cfg.Upload.Commands[0].Name)
	assert.Equal(t, 25.0, cfg.HitTest.ToleranceMeters)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestParseConfig_Full(t *testing.T) {
	t.Setenv("TEST_S3_SECRET", "from-env")
	data := `
port: 9000
log:
  level: debug
  format: console
storage:
  type: s3
  bucket: venice-bridges
  region: eu-south-1
  endpoint: http://minio:9000
  accessKeyId: minio
  secretAccessKey: ${TEST_S3_SECRET}
  usePathStyle: true
  presignGet: true
  presignTTL: 5m
catalog:
  type: featureservice
  url: https://services.example.com/arcgis/rest/services/bridges/FeatureServer/0
  timeout: 3s
  refreshInterval: 1h
quota:
  type: redis
  limit: 6
  redis:
    addr: redis:6379
    db: 2
admin:
  username: admin
  passwordHash: $2a$10$abcdefghijklmnopqrstuv
  jwtSecret: secret
  tokenTTL: 30m
upload:
  maxBytes: 1024
  commands:
    - name: JpegConverterCommand
      quality: 80
    - name: ScaleCommand
      maxWidth: 1600
      maxHeight: 1600
rateLimit:
  requestsPerSecond: 2
server:
  trustedProxies: ["10.0.0.0/8", "fd00::/8"]
cors:
  allowOrigins: ["https://bridges.example.com"]
`
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "venice-bridges", cfg.Storage.Bucket)
	assert.Equal(t, "from-env", cfg.Storage.SecretAccessKey)
	assert.True(t, cfg.Storage.UsePathStyle)
	assert.Equal(t, 5*time.Minute, cfg.Storage.PresignTTL)
	assert.Equal(t, 3*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, time.Hour, cfg.Catalog.RefreshInterval)
	assert.Equal(t, "redis:6379", cfg.Quota.Redis.Addr)
	assert.Equal(t, 2, cfg.Quota.Redis.DB)
	assert.Equal(t, 6, cfg.Quota.Limit)
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuv", cfg.Admin.PasswordHash)
	assert.Equal(t, 30*time.Minute, cfg.Admin.TokenTTL)
	require.Len(t, cfg.Upload.Commands, 2)
	assert.Equal(t, 80, cfg.Upload.Commands[0].Params["quality"])
	assert.Equal(t, 1600, cfg.Upload.Commands[1].Params["maxWidth"])
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"10.0.0.0/8", "fd00::/8"}, cfg.Server.TrustedProxies)
	assert.Equal(t, []string{"https://bridges.example.com"}, cfg.CORS.AllowOrigins)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":          "port: [",
		"bad port":          minimalConfig + "port: 70000\n",
		"unknown storage":   minimalConfig + "storage:\n  type: ftp\n",
		"s3 without bucket": minimalConfig + "storage:\n  type: s3\n",
		"feature no url":    minimalConfig + "catalog:\n  type: featureservice\n",
		"redis no addr":     minimalConfig + "quota:\n  type: redis\n",
		"postgres no dsn":   minimalConfig + "quota:\n  type: postgres\n",
		"negative limit":    minimalConfig + "quota:\n  limit: -1\n",
		"duplicate command": minimalConfig + "upload:\n  commands:\n    - name: ScaleCommand\n    - name: ScaleCommand\n",
		"unknown command":   minimalConfig + "upload:\n  commands:\n    - name: BlurCommand\n",
		"empty command":     minimalConfig + "upload:\n  commands:\n    - quality: 3\n",
		"bad proxy range":   minimalConfig + "server:\n  trustedProxies: [\"10.0.0.1\"]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Admin.Username)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandEnvOnlyBraced(t *testing.T) {
	t.Setenv("BRIDGE_TEST_VAR", "x")
	got := string(expandEnv([]byte("a=${BRIDGE_TEST_VAR} b=$BRIDGE_TEST_VAR c=${MISSING_BRIDGE_VAR}")))
	assert.Equal(t, "a=x b=$BRIDGE_TEST_VAR c=", got)
}

func TestValidateCommandsListsAvailable(t *testing.T) {
	_, err := ParseConfig([]byte(minimalConfig + "upload:\n  commands:\n    - name: BlurCommand\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: BlurCommand")
	assert.Contains(t, err.Error(), "JpegConverterCommand")
}
