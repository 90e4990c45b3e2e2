package config

import (
	"encoding/json"
	"os"

	"github.com/cooklio/auth-service/internal/flagx"
	"github.com/cooklio/auth-service/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. Interval fields use timex.Duration, which accepts both string values
// such as "15m" and integer nanoseconds. After unmarshalling, non-zero fields
// are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      *int           `json:"redis_db"`
	AccessTokenSecret            string         `json:"access_token_secret"`
	RefreshTokenSecret           string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	CodeValidityDuration         timex.Duration `json:"code_validity_duration"`
	UserCacheValidityDuration    timex.Duration `json:"user_cache_validity_duration"`
	SMTPHost                     string         `json:"smtp_host"`
	SMTPPort                     *int           `json:"smtp_port"`
	SMTPUser                     string         `json:"smtp_user"`
	SMTPPassword                 string         `json:"smtp_password"`
	SMTPFrom                     string         `json:"smtp_from"`
	CORSAllowOrigin              string         `json:"cors_allow_origin"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags, if any, into the provided Config. Fields absent from the
// file keep their current values. An unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		config.RedisPassword = c.RedisPassword
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.AccessTokenSecret != "" {
		config.AccessTokenSecret = c.AccessTokenSecret
	}
	if c.RefreshTokenSecret != "" {
		config.RefreshTokenSecret = c.RefreshTokenSecret
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.CodeValidityDuration.Duration != 0 {
		config.CodeValidityDuration = c.CodeValidityDuration.Duration
	}
	if c.UserCacheValidityDuration.Duration != 0 {
		config.UserCacheValidityDuration = c.UserCacheValidityDuration.Duration
	}
	if c.SMTPHost != "" {
		config.SMTPHost = c.SMTPHost
	}
	if c.SMTPPort != nil {
		config.SMTPPort = *c.SMTPPort
	}
	if c.SMTPUser != "" {
		config.SMTPUser = c.SMTPUser
	}
	if c.SMTPPassword != "" {
		config.SMTPPassword = c.SMTPPassword
	}
	if c.SMTPFrom != "" {
		config.SMTPFrom = c.SMTPFrom
	}
	if c.CORSAllowOrigin != "" {
		config.CORSAllowOrigin = c.CORSAllowOrigin
	}
}
