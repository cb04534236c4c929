package bootstrap

import (
	"fmt"

	"tuitionpay/pkg/config"
	"tuitionpay/pkg/redis"
)

// SetupRedis 初始化 Redis
func SetupRedis() {
	redis.ConnectRedis(
		fmt.Sprintf("%v:%v", config.GetString("redis.host"), config.GetString("redis.port")),
		config.GetString("redis.username"),
		config.GetString("redis.password"),
		config.GetInt("redis.database"),
	)
}
