// Package version 保存构建时注入的版本号。
package version

import (
	"fmt"
	"runtime/debug"
)

// Version/Commit 通过 -ldflags "-X" 注入；未注入时 Commit 尝试从 VCS 构建信息读取。
var (
	Version = "0.1.0"
	Commit  = ""
)

// Full 返回 "repohub <version> (<commit>)"。
func Full() string {
	return fmt.Sprintf("repohub %s (%s)", Version, commit())
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return "dev"
}
