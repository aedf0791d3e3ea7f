package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/flagx"
)

var knownFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-v", "-b", "-chunk", "-root",
	"-s3-user", "-s3-password", "-s3-bucket", "-s3-region", "-s3-endpoint",
	"-enc-key", "-token-store", "-redis", "-notifier", "-nats", "-log-format", "-log-level", "-max-upload",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string         HTTP bind address (e.g., ":8080")
//	-g string         gRPC bind address (e.g., ":50051")
//	-d string         PostgreSQL DSN
//	-s string         JWT HMAC secret key
//	-t int            download token validity, minutes
//	-v int            video token validity, minutes
//	-b string         storage backend: db, fs or s3
//	-chunk int        chunk size in bytes
//	-root string      filesystem backend root
//	-s3-* string      S3 user, password, bucket, region, endpoint
//	-enc-key string   encryption passphrase
//	-token-store      postgres or redis
//	-redis string     redis address
//	-notifier string  log, redis or nats
//	-nats string      NATS URL
//	-log-format       json, text or zap
//	-log-level        debug, info, warn or error
//	-max-upload int   maximum upload size in bytes
//
// os.Args is filtered with flagx.FilterArgs first so that flags owned by
// other components (-c) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	downloadTokenValidity := fs.Int("t", int(config.DownloadTokenValidityDuration.Minutes()), "download_token_validity_duration (in minutes)")
	videoTokenValidity := fs.Int("v", int(config.VideoTokenValidityDuration.Minutes()), "video_token_validity_duration (in minutes)")

	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (db, fs, s3)")
	fs.Int64Var(&config.ChunkSize, "chunk", config.ChunkSize, "chunk size in bytes")
	fs.StringVar(&config.FSRoot, "root", config.FSRoot, "filesystem backend root")

	fs.StringVar(&config.S3RootUser, "s3-user", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "s3-password", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.EncryptionKey, "enc-key", config.EncryptionKey, "encryption passphrase")
	fs.StringVar(&config.TokenStore, "token-store", config.TokenStore, "token store (postgres, redis)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.Notifier, "notifier", config.Notifier, "share notifier (log, redis, nats)")
	fs.StringVar(&config.NATSURL, "nats", config.NATSURL, "NATS URL")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (json, text, zap)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.Int64Var(&config.MaxUploadSize, "max-upload", config.MaxUploadSize, "maximum upload size in bytes")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DownloadTokenValidityDuration = time.Duration(*downloadTokenValidity) * time.Minute
	config.VideoTokenValidityDuration = time.Duration(*videoTokenValidity) * time.Minute
}
