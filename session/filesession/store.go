// Package filesession 把每个会话保存为目录下的一个 JSON 文件
package filesession

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
)

const (
	fileExt    = ".json"
	tempPrefix = ".tmp-"

	staleTempAge = time.Hour
)

// Store 是基于文件系统的会话存储。
//
// 写入时先写临时文件再 rename，同一目录内的 rename 是原子的，
// 读者只会看到完整的旧文件或完整的新文件
type Store struct {
	dir           string
	fileMode      fs.FileMode
	removeCorrupt bool
	now           func() time.Time
	log           logger.Logger
}

type Option func(*Store)

// WithFileMode 设置会话文件的权限，默认 0600
func WithFileMode(mode fs.FileMode) Option {
	return func(s *Store) {
		s.fileMode = mode
	}
}

// WithRemoveCorrupt 控制读取到无法解析的文件时是否删除它，默认删除
func WithRemoveCorrupt(remove bool) Option {
	return func(s *Store) {
		s.removeCorrupt = remove
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore 创建文件存储，目录不存在时会被创建
func NewStore(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, session.ErrInvalidConfig("filesession: directory is required")
	}
	s := &Store{
		dir:           filepath.Clean(dir),
		fileMode:      0o600,
		removeCorrupt: true,
		now:           time.Now,
		log:           logger.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, session.ErrInvalidConfig("filesession: cannot create %s: %v", s.dir, err)
	}
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return nil, session.ErrInvalidConfig("filesession: %s is not a directory", s.dir)
	}
	s.log = s.log.WithFields(logger.String("component", "filesession"), logger.String("dir", s.dir))
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) (string, error) {
	if !session.ValidID(id) {
		return "", session.ErrNotFound
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	rec, err := s.read(id, p)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, session.ErrNotFound
	}
	return rec, nil
}

func (s *Store) read(id, p string) (*session.Record, error) {
	blob, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, session.ErrUnavailable("read", err)
	}
	rec, err := session.Unmarshal(id, blob)
	if err != nil {
		if s.removeCorrupt {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.log.Warn("failed to remove corrupt session file", logger.FieldError(rmErr))
			}
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) Set(ctx context.Context, rec *session.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(rec.ID)
	if err != nil {
		return session.ErrInvalidConfig("filesession: invalid session id %q", rec.ID)
	}
	if rec.Expired(s.now()) {
		return s.Destroy(ctx, rec.ID)
	}
	blob, err := session.Marshal(rec)
	if err != nil {
		return fmt.Errorf("filesession: encode %s: %w", rec.ID, err)
	}
	return s.writeAtomic(p, blob)
}

// writeAtomic 在同一目录中写临时文件，fsync 后 rename 到目标路径
func (s *Store) writeAtomic(p string, blob []byte) error {
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return session.ErrUnavailable("create temp", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err = tmp.Write(blob); err != nil {
		cleanup()
		return session.ErrUnavailable("write", err)
	}
	if err = tmp.Chmod(s.fileMode); err != nil {
		cleanup()
		return session.ErrUnavailable("chmod", err)
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return session.ErrUnavailable("sync", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return session.ErrUnavailable("close", err)
	}
	if err = os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return session.ErrUnavailable("rename", err)
	}
	return nil
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(id)
	if err != nil {
		// 非法的 id 不可能对应任何文件
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return session.ErrUnavailable("remove", err)
	}
	return nil
}

// Touch 需要重写整个文件，文件格式不支持局部更新
func (s *Store) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.ExpiresAt = expiresAt
	return s.Set(ctx, rec)
}

// SweepExpired 遍历目录删除过期文件。
// 文件可能同时被其他清理进程或 Destroy 删除，ENOENT 视为已删除
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, session.ErrUnavailable("readdir", err)
	}

	now := s.now()
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) {
			s.removeStaleTemp(entry)
			continue
		}
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if !session.ValidID(id) {
			continue
		}

		p := filepath.Join(s.dir, name)
		rec, err := s.read(id, p)
		switch {
		case errors.Is(err, session.ErrNotFound):
			continue
		case errors.Is(err, session.ErrCorruptRecord):
			// read 已经按配置删除了损坏的文件
			s.log.Warn("corrupt session file skipped during sweep", logger.String("id", id))
			continue
		case err != nil:
			return removed, err
		}
		if !rec.Expired(now) {
			continue
		}
		// 读取和删除之间没有跨进程的锁。如果另一个进程恰好在这段时间用 rename
		// 覆盖了同一个 id，新写入的记录会被一并删掉，效果等同于会话提前过期。
		// 只有客户端复用了已过期的 id 才会落入这个窗口
		if err := os.Remove(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, session.ErrUnavailable("remove", err)
		}
		removed++
	}
	return removed, nil
}

// removeStaleTemp 删除进程崩溃后遗留的临时文件
func (s *Store) removeStaleTemp(entry fs.DirEntry) {
	info, err := entry.Info()
	if err != nil || time.Since(info.ModTime()) < staleTempAge {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("failed to remove stale temp file", logger.String("file", entry.Name()), logger.FieldError(err))
	}
}

// Close 文件存储没有需要释放的资源
func (s *Store) Close() error {
	return nil
}
