package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc 在配置文件变更后被调用；err 非空时 cfg 为 nil，调用方应保留旧快照。
type ReloadFunc func(cfg *Config, err error)

// Watch 读取 path 并在文件写入或重建后重新解析，每次变更回调一次 onChange。
// 返回首次加载的配置；首次加载失败时不会启动监听。
func Watch(path string, onChange ReloadFunc) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// 回调运行在 viper 的监听协程中，此时文件已被重新读取。
	v.OnConfigChange(func(fsnotify.Event) {
		next, err := decode(v)
		onChange(next, err)
	})
	v.WatchConfig()
	return cfg, nil
}
