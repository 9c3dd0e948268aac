package cache

import (
	"time"

	"github.com/eko/gocache/lib/v4/store"
	redisStore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

var S store.StoreInterface

func NewCache() error {
	client := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("cache.redis_addr"),
		Password: viper.GetString("cache.redis_password"),
	})

	ttl := viper.GetDuration("cache.ttl")
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	S = redisStore.NewRedis(client, store.WithExpiration(ttl))
	return nil
}
