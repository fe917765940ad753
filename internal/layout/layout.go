// Package layout 提供各生态（Maven 2 / npm / NuGet / PyPI / raw）的坐标与路径映射。
//
// 每个生态恰好一个 Provider，统一在 registry.go 的静态表中登记，不做运行时扫描。
// Provider 的所有方法都是纯函数：不访问磁盘，也不访问网络。
package layout

import (
	"path"
	"strings"

	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

// Descriptor 是 layout 的静态描述：规范名、别名以及可识别的坐标字段。
type Descriptor struct {
	Name   string
	Alias  string
	Fields []string
}

// Provider 是单个生态的坐标/路径策略。
type Provider interface {
	Descriptor() Descriptor
	Schema() *coordinates.Schema
	// ParseCoordinates 是 CoordinatesToPath 的左逆。
	ParseCoordinates(relPath string) (coordinates.Coordinates, error)
	CoordinatesToPath(c coordinates.Coordinates) (string, error)
	IsMetadataPath(relPath string) bool
	ValidatePath(relPath string) error
}

// RemotePathMapper 允许 layout 将本地落盘路径映射为上游请求路径，
// 例如 npm 的 <name>/package.json 在上游对应 <name>。
type RemotePathMapper interface {
	RemotePath(relPath string) string
}

// LocalPathMapper 允许 layout 把请求路径改写为本地落盘路径。
type LocalPathMapper interface {
	LocalPath(relPath string) string
}

// LocalPath 返回 rel 的本地落盘路径；未实现 LocalPathMapper 时原样返回。
func LocalPath(p Provider, rel string) string {
	if mapper, ok := p.(LocalPathMapper); ok {
		return mapper.LocalPath(rel)
	}
	return rel
}

// RemotePath 返回 rel 在上游的相对路径；未实现 RemotePathMapper 时原样返回。
func RemotePath(p Provider, rel string) string {
	if mapper, ok := p.(RemotePathMapper); ok {
		return mapper.RemotePath(rel)
	}
	return rel
}

// PURL 返回 rel 对应构件的 package URL；元数据路径、无法解析或生态无 purl 类型时返回空串。
func PURL(p Provider, rel string) string {
	if p == nil || rel == "" || p.IsMetadataPath(rel) {
		return ""
	}
	c, err := p.ParseCoordinates(rel)
	if err != nil {
		return ""
	}
	return c.PURL()
}

// CleanPath 归一化相对路径：去掉前导斜杠、折叠 . 与重复分隔符，拒绝越界的 ..。
func CleanPath(layoutName, rel string) (string, error) {
	raw := strings.TrimSpace(rel)
	if strings.ContainsRune(raw, '\\') {
		return "", errs.InvalidPath(layoutName, rel, "backslash not allowed")
	}
	if strings.ContainsRune(raw, 0) {
		return "", errs.InvalidPath(layoutName, rel, "NUL byte not allowed")
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", errs.InvalidPath(layoutName, rel, "parent segment not allowed")
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if clean == "" {
		return "", nil
	}
	return clean, nil
}

// baseValidate 是各 layout 共用的基础校验。
func baseValidate(layoutName, rel string) (string, error) {
	clean, err := CleanPath(layoutName, rel)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", errs.InvalidPath(layoutName, rel, "empty path")
	}
	return clean, nil
}

func splitSegments(rel string) []string {
	if rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}

// canonicalPath 要求 rel 能被解析回与 c 完全一致的坐标；
// 任何会在解析时被补全、归一化或丢弃的输入都视为非规范坐标而拒绝。
func canonicalPath(p Provider, c coordinates.Coordinates, rel string) (string, error) {
	back, err := p.ParseCoordinates(rel)
	if err != nil {
		return "", errs.InvalidPath(p.Descriptor().Name, c.String(), "coordinates do not map to a parseable path: "+err.Error())
	}
	if !back.Equal(c) {
		return "", errs.InvalidPath(p.Descriptor().Name, c.String(), "coordinates are not canonical, path parses as "+back.String())
	}
	return rel, nil
}

// stripChecksum 去掉 checksum 后缀，用于判断 sidecar 所指向的目标文件。
func stripChecksum(rel string) (string, bool) {
	if alg, ok := checksum.AlgorithmOf(rel); ok {
		return strings.TrimSuffix(rel, alg.Extension()), true
	}
	return rel, false
}
