package cache

import "time"

// Freshness 判断条目是否仍在新鲜窗口内，窗口 <= 0 时一律视为过期。
type Freshness struct {
	window time.Duration
	now    func() time.Time
}

// NewFreshness 构造新鲜度判断器，默认使用 time.Now 作为时钟。
func NewFreshness(window time.Duration) Freshness {
	return Freshness{window: window, now: time.Now}
}

// Fresh 返回 entry 是否可以跳过过期策略直接复用。
func (f Freshness) Fresh(entry Entry) bool {
	if f.window <= 0 {
		return false
	}
	now := f.now
	if now == nil {
		now = time.Now
	}
	return now().Before(entry.ModTime.Add(f.window))
}
