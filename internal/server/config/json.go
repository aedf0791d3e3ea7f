package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/clouddrive/internal/flagx"
	"github.com/dmitrijs2005/clouddrive/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept both "15m" strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP              string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC              string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                   string          `json:"database_dsn"`
	SecretKey                     string          `json:"secret_key"`
	DownloadTokenValidityDuration *timex.Duration `json:"download_token_validity_duration"`
	VideoTokenValidityDuration    *timex.Duration `json:"video_token_validity_duration"`
	PublicLinkValidityDuration    *timex.Duration `json:"public_link_validity_duration"`
	StorageBackend                string          `json:"storage_backend"`
	ChunkSize                     int64           `json:"chunk_size"`
	FSRoot                        string          `json:"fs_root"`
	S3RootUser                    string          `json:"s3_root_user"`
	S3RootPassword                string          `json:"s3_root_password"`
	S3Bucket                      string          `json:"s3_bucket"`
	S3Region                      string          `json:"s3_region"`
	S3BaseEndpoint                string          `json:"s3_base_endpoint"`
	EncryptionKey                 string          `json:"encryption_key"`
	TokenStore                    string          `json:"token_store"`
	RedisAddr                     string          `json:"redis_addr"`
	Notifier                      string          `json:"notifier"`
	NATSURL                       string          `json:"nats_url"`
	LogFormat                     string          `json:"log_format"`
	LogLevel                      string          `json:"log_level"`
	MaxUploadSize                 int64           `json:"max_upload_size"`
	CookieSecure                  *bool           `json:"cookie_secure"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays values from the file named by -c/-config. Keys absent
// from the file keep their current value. An unreadable or malformed file
// panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.DownloadTokenValidityDuration != nil {
		config.DownloadTokenValidityDuration = c.DownloadTokenValidityDuration.Duration
	}
	if c.VideoTokenValidityDuration != nil {
		config.VideoTokenValidityDuration = c.VideoTokenValidityDuration.Duration
	}
	if c.PublicLinkValidityDuration != nil {
		config.PublicLinkValidityDuration = c.PublicLinkValidityDuration.Duration
	}
	setString(&config.StorageBackend, c.StorageBackend)
	if c.ChunkSize > 0 {
		config.ChunkSize = c.ChunkSize
	}
	setString(&config.FSRoot, c.FSRoot)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.TokenStore, c.TokenStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.Notifier, c.Notifier)
	setString(&config.NATSURL, c.NATSURL)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
}
