package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：日志、监听端口、连接池与上游超时。
type GlobalConfig struct {
	ListenPort            int      `mapstructure:"ListenPort"`
	LogLevel              string   `mapstructure:"LogLevel"`
	LogFormat             string   `mapstructure:"LogFormat"`
	LogFilePath           string   `mapstructure:"LogFilePath"`
	LogMaxSize            int      `mapstructure:"LogMaxSize"`
	LogMaxBackups         int      `mapstructure:"LogMaxBackups"`
	LogCompress           bool     `mapstructure:"LogCompress"`
	StoragePath           string   `mapstructure:"StoragePath"`
	UpstreamTimeout       Duration `mapstructure:"UpstreamTimeout"`
	AcquireTimeout        Duration `mapstructure:"AcquireTimeout"`
	MaxConnections        int      `mapstructure:"MaxConnections"`
	DefaultMaxPerOrigin   int      `mapstructure:"DefaultMaxPerOrigin"`
	PoolExtendFactor      float64  `mapstructure:"PoolExtendFactor"`
	PoolExtendThreshold   float64  `mapstructure:"PoolExtendThreshold"`
	DNSRefreshInterval    Duration `mapstructure:"DNSRefreshInterval"`
	BreakerThreshold      int      `mapstructure:"BreakerThreshold"`
	StrictGroupValidation bool     `mapstructure:"StrictGroupValidation"`
	UserAgent             string   `mapstructure:"UserAgent"`
}

// RepositoryConfig 对应 [[Storage.Repository]]。
type RepositoryConfig struct {
	ID                 string   `mapstructure:"ID"`
	Layout             string   `mapstructure:"Layout"`
	Type               string   `mapstructure:"Type"`
	Status             string   `mapstructure:"Status"`
	BaseDir            string   `mapstructure:"BaseDir"`
	RemoteURL          string   `mapstructure:"RemoteURL"`
	Username           string   `mapstructure:"Username"`
	Password           string   `mapstructure:"Password"`
	ChecksumValidation bool     `mapstructure:"ChecksumValidation"`
	MetadataStrategy   string   `mapstructure:"MetadataStrategy"`
	MetadataFreshness  Duration `mapstructure:"MetadataFreshness"`
	MaxConnections     int      `mapstructure:"MaxConnections"`
	Members            []string `mapstructure:"Members"`
}

// StorageConfig 对应 [[Storage]]，BaseDir 为空时落在 StoragePath/<ID>。
type StorageConfig struct {
	ID           string             `mapstructure:"ID"`
	BaseDir      string             `mapstructure:"BaseDir"`
	Repositories []RepositoryConfig `mapstructure:"Repository"`
}

// RoutingRuleConfig 对应 [[RoutingRule]]，Group = "*" 表示通配规则。
type RoutingRuleConfig struct {
	Storage      string   `mapstructure:"Storage"`
	Group        string   `mapstructure:"Group"`
	Type         string   `mapstructure:"Type"`
	Pattern      string   `mapstructure:"Pattern"`
	Repositories []string `mapstructure:"Repositories"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global       GlobalConfig        `mapstructure:",squash"`
	Storages     []StorageConfig     `mapstructure:"Storage"`
	RoutingRules []RoutingRuleConfig `mapstructure:"RoutingRule"`
}

// HasCredentials 表示当前仓库是否配置了完整的上游凭证。
func (r RepositoryConfig) HasCredentials() bool {
	return r.Username != "" && r.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (r RepositoryConfig) AuthMode() string {
	if r.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// CredentialModes 返回所有 proxy 仓库的鉴权模式摘要，例如 s0:central:anonymous。
func CredentialModes(storages []StorageConfig) []string {
	var result []string
	for _, st := range storages {
		for _, repo := range st.Repositories {
			if !strings.EqualFold(repo.Type, "proxy") {
				continue
			}
			result = append(result, fmt.Sprintf("%s:%s:%s", st.ID, repo.ID, repo.AuthMode()))
		}
	}
	return result
}

// RepositoryCount 统计所有 storage 下的仓库数量。
func (c *Config) RepositoryCount() int {
	n := 0
	for _, st := range c.Storages {
		n += len(st.Repositories)
	}
	return n
}
