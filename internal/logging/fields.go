package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供仓库身份与命中状态字段，供解析/代理日志复用。
func RequestFields(storage, repository, repoType, layout, path string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"storage":    storage,
		"repository": repository,
		"repo_type":  repoType,
		"layout":     layout,
		"path":       path,
		"cache_hit":  cacheHit,
	}
}
