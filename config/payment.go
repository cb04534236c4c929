package config

import "tuitionpay/pkg/config"

func init() {
	config.Add("payment", func() map[string]interface{} {
		return map[string]interface{}{
			// OTP 有效期，单位：秒
			"otp_ttl_seconds": config.Env("PAYMENT_OTP_TTL_SECONDS", 60),

			// 允许的验证码错误次数
			"max_otp_attempts": config.Env("PAYMENT_MAX_OTP_ATTEMPTS", 3),

			// 过期会话清扫周期，单位：秒
			"sweep_interval_seconds": config.Env("PAYMENT_SWEEP_INTERVAL_SECONDS", 60),
		}
	})
}
