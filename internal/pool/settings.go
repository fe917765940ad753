package pool

import "time"

// Settings 为连接池的全局参数。Manager 以原子指针持有不可变副本，
// 每次获取连接时读取一次，运行期调整即整体替换。
type Settings struct {
	// MaxTotal 是所有 origin 合计的租约上限。
	MaxTotal int
	// DefaultPerOrigin 用于未显式配置上限的 origin。
	DefaultPerOrigin int
	// ExtendFactor <= 1 表示关闭自动扩容。
	ExtendFactor float64
	// ExtendThreshold 是触发扩容的使用率（0-1]。
	ExtendThreshold float64
	// AcquireTimeout 是获取连接的最长等待时间。
	AcquireTimeout time.Duration
	// DNSRefresh 为 DNS 缓存刷新周期，0 表示使用默认值。
	DNSRefresh time.Duration
}

// DefaultSettings 返回内置默认值。
func DefaultSettings() Settings {
	return Settings{
		MaxTotal:         200,
		DefaultPerOrigin: 5,
		ExtendFactor:     2,
		ExtendThreshold:  0.8,
		AcquireTimeout:   30 * time.Second,
		DNSRefresh:       5 * time.Minute,
	}
}

// normalized 用默认值补全非法或缺省字段。
func (s Settings) normalized() Settings {
	def := DefaultSettings()
	if s.MaxTotal <= 0 {
		s.MaxTotal = def.MaxTotal
	}
	if s.DefaultPerOrigin <= 0 {
		s.DefaultPerOrigin = def.DefaultPerOrigin
	}
	if s.DefaultPerOrigin > s.MaxTotal {
		s.DefaultPerOrigin = s.MaxTotal
	}
	if s.ExtendThreshold <= 0 || s.ExtendThreshold > 1 {
		s.ExtendThreshold = def.ExtendThreshold
	}
	if s.AcquireTimeout <= 0 {
		s.AcquireTimeout = def.AcquireTimeout
	}
	if s.DNSRefresh <= 0 {
		s.DNSRefresh = def.DNSRefresh
	}
	return s
}
