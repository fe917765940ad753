package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	if path == "" {
		path = "config.toml"
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	return v
}

// decode 把已读入的 viper 实例转换为校验过的 Config，Load 与热加载共用。
func decode(v *viper.Viper) (*Config, error) {
	if err := rejectLegacyHubSection(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Storages {
		for j := range cfg.Storages[i].Repositories {
			applyRepositoryDefaults(&cfg.Storages[i].Repositories[j])
		}
	}
	for i := range cfg.RoutingRules {
		applyRuleDefaults(&cfg.RoutingRules[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析存储目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("AcquireTimeout", "30s")
	v.SetDefault("MaxConnections", 200)
	v.SetDefault("DefaultMaxPerOrigin", 5)
	v.SetDefault("PoolExtendFactor", 2.0)
	v.SetDefault("PoolExtendThreshold", 0.8)
	v.SetDefault("DNSRefreshInterval", "5m")
	v.SetDefault("BreakerThreshold", 5)
	v.SetDefault("StrictGroupValidation", false)
	v.SetDefault("UserAgent", "repohub/1.0")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.AcquireTimeout.DurationValue() == 0 {
		g.AcquireTimeout = Duration(30 * time.Second)
	}
	if g.DNSRefreshInterval.DurationValue() == 0 {
		g.DNSRefreshInterval = Duration(5 * time.Minute)
	}
	if g.PoolExtendFactor == 0 {
		g.PoolExtendFactor = 1
	}
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
	if g.LogFormat == "" {
		g.LogFormat = "json"
	}
	if strings.TrimSpace(g.UserAgent) == "" {
		g.UserAgent = "repohub/1.0"
	}
}

func applyRepositoryDefaults(r *RepositoryConfig) {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "" {
		r.Type = "hosted"
	}
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	if r.Status == "" {
		r.Status = "in-service"
	}
	r.MetadataStrategy = strings.ToLower(strings.TrimSpace(r.MetadataStrategy))
	if r.MetadataStrategy == "" {
		r.MetadataStrategy = "checksum"
	}
	for i, m := range r.Members {
		r.Members[i] = strings.TrimSpace(m)
	}
}

func applyRuleDefaults(r *RoutingRuleConfig) {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if strings.TrimSpace(r.Group) == "" {
		r.Group = "*"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectLegacyHubSection 拒绝旧版 [[Hub]] 配置段，提示迁移到 [[Storage]]。
func rejectLegacyHubSection(v *viper.Viper) error {
	if v.IsSet("Hub") {
		return newFieldError("Hub", "字段已弃用，请改用 [[Storage]] 与 [[Storage.Repository]]")
	}
	return nil
}
