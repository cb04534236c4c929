package config

import "tuitionpay/pkg/config"

func init() {
	config.Add("services", func() map[string]interface{} {
		return map[string]interface{}{
			// 下游服务地址
			"user_url":         config.Env("USER_SERVICE_URL", "http://127.0.0.1:8081"),
			"tuition_url":      config.Env("TUITION_SERVICE_URL", "http://127.0.0.1:8082"),
			"notification_url": config.Env("NOTIFICATION_SERVICE_URL", "http://127.0.0.1:8083"),

			// 下游调用超时，单位：秒
			"timeout": config.Env("SERVICES_TIMEOUT_SECONDS", 5),
		}
	})
}
