package config

import "github.com/dmitrijs2005/clouddrive/internal/flagx"

const envPrefix = "CLOUDDRIVE_"

// parseEnv overlays CLOUDDRIVE_* environment variables, e.g.
// CLOUDDRIVE_DATABASE_DSN or CLOUDDRIVE_STORAGE_BACKEND. Malformed numeric,
// boolean or duration values panic.
func parseEnv(c *Config) {
	flagx.EnvString(envPrefix+"HTTP_ADDR", &c.EndpointAddrHTTP)
	flagx.EnvString(envPrefix+"GRPC_ADDR", &c.EndpointAddrGRPC)
	flagx.EnvString(envPrefix+"DATABASE_DSN", &c.DatabaseDSN)
	flagx.EnvString(envPrefix+"SECRET_KEY", &c.SecretKey)
	flagx.EnvString(envPrefix+"STORAGE_BACKEND", &c.StorageBackend)
	flagx.EnvString(envPrefix+"FS_ROOT", &c.FSRoot)
	flagx.EnvString(envPrefix+"S3_ROOT_USER", &c.S3RootUser)
	flagx.EnvString(envPrefix+"S3_ROOT_PASSWORD", &c.S3RootPassword)
	flagx.EnvString(envPrefix+"S3_BUCKET", &c.S3Bucket)
	flagx.EnvString(envPrefix+"S3_REGION", &c.S3Region)
	flagx.EnvString(envPrefix+"S3_BASE_ENDPOINT", &c.S3BaseEndpoint)
	flagx.EnvString(envPrefix+"ENCRYPTION_KEY", &c.EncryptionKey)
	flagx.EnvString(envPrefix+"TOKEN_STORE", &c.TokenStore)
	flagx.EnvString(envPrefix+"REDIS_ADDR", &c.RedisAddr)
	flagx.EnvString(envPrefix+"NOTIFIER", &c.Notifier)
	flagx.EnvString(envPrefix+"NATS_URL", &c.NATSURL)
	flagx.EnvString(envPrefix+"LOG_FORMAT", &c.LogFormat)
	flagx.EnvString(envPrefix+"LOG_LEVEL", &c.LogLevel)

	for _, err := range []error{
		flagx.EnvDuration(envPrefix+"DOWNLOAD_TOKEN_TTL", &c.DownloadTokenValidityDuration),
		flagx.EnvDuration(envPrefix+"VIDEO_TOKEN_TTL", &c.VideoTokenValidityDuration),
		flagx.EnvDuration(envPrefix+"PUBLIC_LINK_TTL", &c.PublicLinkValidityDuration),
		flagx.EnvInt64(envPrefix+"CHUNK_SIZE", &c.ChunkSize),
		flagx.EnvInt64(envPrefix+"MAX_UPLOAD_SIZE", &c.MaxUploadSize),
		flagx.EnvBool(envPrefix+"COOKIE_SECURE", &c.CookieSecure),
	} {
		if err != nil {
			panic(err)
		}
	}
}
