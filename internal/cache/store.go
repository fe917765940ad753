package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/errs"
)

// Store 负责管理仓库目录下的读写。磁盘布局遵循：
//
//	<Root>/<path>          # 正文
//	<Root>/<path>.sha1     # 可选 checksum sidecar
//	<Root>/<path>.md5
//
// Root 为相对路径时挂在 Store 的 basePath 之下。
type Store interface {
	// Get 返回一个可流式读取的条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Stat 只返回文件信息，不打开正文。
	Stat(ctx context.Context, locator Locator) (*Entry, error)

	// Put 通过临时文件 + rename 写入正文；opts.Validate 在 rename 之前执行，
	// 返回错误时丢弃临时文件并保持原有内容不变。正文与 sidecar 一起提交，
	// 任一 rename 失败都会恢复原有的正文与 sidecar。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文及其 checksum sidecar。
	Remove(ctx context.Context, locator Locator) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
	// Algorithms 为空时使用 checksum.Preferred。
	Algorithms []checksum.Algorithm
	// Validate 接收完整正文的摘要，返回错误即视为写入失败。
	Validate func(checksum.Digests) error
	// Sidecars 为 true 时把摘要写成 <path>.<alg> 文件。
	Sidecars bool
}

// Locator 唯一定位一个条目（仓库根目录 + 相对路径），路径均为 URL 路径风格。
type Locator struct {
	// Repository 仅用于日志与加锁，形如 storage:repository。
	Repository string
	Root       string
	Path       string
}

func (l Locator) String() string {
	return l.Repository + "/" + l.Path
}

// Entry 描述一个已落盘的条目。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
	// Checksums 仅在 Put 返回的 Entry 中填充。
	Checksums checksum.Digests `json:"checksums,omitempty"`
}

// ReadResult 组合 Entry 与正文 Reader，便于上层直接流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示条目不存在，可与 errs.ErrNotFound 匹配。
var ErrNotFound = fmt.Errorf("cache entry: %w", errs.ErrNotFound)
