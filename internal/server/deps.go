package server

import (
	"github.com/dmitrijs2005/clouddrive/internal/dbx"
	"github.com/redis/go-redis/v9"
)

// Seams for tests.
var (
	openDB   = dbx.Open
	newRedis = func(addr string) redis.UniversalClient {
		return redis.NewClient(&redis.Options{Addr: addr})
	}
)
