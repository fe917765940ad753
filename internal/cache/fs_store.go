package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/any-hub/repohub/internal/checksum"
)

const tempPattern = ".repohub-*"

// NewStore 以 basePath 为相对 Root 的挂载点构建磁盘存储，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一条目的写入与删除。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Stat(ctx context.Context, locator Locator) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return &Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	entry, err := s.Stat(ctx, locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(entry.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ReadResult{Entry: *entry, Reader: f}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock := s.lockEntry(locator)
	defer unlock()

	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()
	discard := func() { os.Remove(tempName) }

	digester := checksum.NewDigester(opts.Algorithms...)
	written, err := copyWithContext(ctx, io.MultiWriter(tempFile, digester), body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		discard()
		return nil, err
	}

	digests := digester.Sum()
	if opts.Validate != nil {
		if err := opts.Validate(digests); err != nil {
			discard()
			return nil, err
		}
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(tempName, modTime, modTime); err != nil {
		discard()
		return nil, err
	}

	// sidecar 先全部暂存，再与正文一起提交；任一步失败都回滚到写入前的状态。
	files := []stagedFile{{temp: tempName, target: filePath}}
	if opts.Sidecars {
		for _, alg := range checksum.Preferred {
			sum, ok := digests[alg]
			if !ok {
				continue
			}
			temp, err := stageFile(dir, []byte(sum), modTime)
			if err != nil {
				discardStaged(files)
				return nil, fmt.Errorf("stage %s sidecar: %w", alg, err)
			}
			files = append(files, stagedFile{temp: temp, target: checksum.SidecarPath(filePath, alg)})
		}
	}
	if err := commitStaged(files); err != nil {
		return nil, err
	}

	return &Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
		Checksums: digests,
	}, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockEntry(locator)
	defer unlock()

	filePath, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	targets := []string{filePath}
	for _, alg := range checksum.Preferred {
		targets = append(targets, checksum.SidecarPath(filePath, alg))
	}
	for _, target := range targets {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *fileStore) lockEntry(locator Locator) func() {
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) root(locator Locator) (string, error) {
	if locator.Root == "" {
		return "", errors.New("repository root required")
	}
	if filepath.IsAbs(locator.Root) {
		return filepath.Clean(locator.Root), nil
	}
	return filepath.Join(s.basePath, filepath.FromSlash(locator.Root)), nil
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	root, err := s.root(locator)
	if err != nil {
		return "", err
	}

	rel := strings.TrimPrefix(path.Clean("/"+locator.Path), "/")
	if rel == "" {
		return "", errors.New("entry path required")
	}

	filePath := filepath.Join(root, filepath.FromSlash(rel))
	if filePath != root && !strings.HasPrefix(filePath, root+string(filepath.Separator)) {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}

// stagedFile 是一个已写好、待 rename 到 target 的临时文件。
type stagedFile struct {
	temp   string
	target string
	// backup 是提交前 target 的副本；target 原本不存在时为空。
	backup string
}

// stageFile 在 dir 下写入临时文件并设置修改时间，返回临时文件名。
func stageFile(dir string, data []byte, modTime time.Time) (string, error) {
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	_, err = io.Copy(tmp, bytes.NewReader(data))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chtimes(name, modTime, modTime)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func discardStaged(files []stagedFile) {
	for _, f := range files {
		os.Remove(f.temp)
	}
}

// commitStaged 按顺序提交暂存文件。某个文件提交失败时，未提交的临时文件被删除，
// 已提交的目标恢复为原内容（原本不存在的则删除）。
func commitStaged(files []stagedFile) error {
	for i := range files {
		if err := files[i].commit(); err != nil {
			discardStaged(files[i:])
			for j := i - 1; j >= 0; j-- {
				files[j].rollback()
			}
			return fmt.Errorf("commit %s: %w", filepath.Base(files[i].target), err)
		}
	}
	for _, f := range files {
		if f.backup != "" {
			os.Remove(f.backup)
		}
	}
	return nil
}

func (f *stagedFile) commit() error {
	backup, err := backupFile(f.target)
	if err != nil {
		return err
	}
	if err := os.Rename(f.temp, f.target); err != nil {
		if backup != "" {
			os.Remove(backup)
		}
		return err
	}
	f.backup = backup
	return nil
}

func (f stagedFile) rollback() {
	if f.backup == "" {
		os.Remove(f.target)
		return
	}
	os.Rename(f.backup, f.target)
}

// backupFile 为已存在的 target 建一个同目录副本，优先用硬链接，不支持时复制内容。
func backupFile(target string) (string, error) {
	if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), tempPattern)
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)
	if err := os.Link(target, name); err == nil {
		return name, nil
	}
	if err := copyFile(target, name); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return err
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.Root + "::" + locator.Path
}
