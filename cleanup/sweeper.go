package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sweeper 按修改时间清理上传和产物目录。
// best-effort：单个文件删不掉只记日志；和正在进行的下载之间
// 存在已知竞态（文件可能在被读时删除），不加锁。
type Sweeper struct {
	dirs      []string
	retention time.Duration
	logger    *zap.Logger

	now func() time.Time
}

func NewSweeper(dirs []string, retention time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		dirs:      dirs,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep 删掉所有超过保留期的条目。
// 上传按请求存放在子目录里，所以过期子目录整个删
func (s *Sweeper) Sweep() {
	cutoff := s.now().Add(-s.retention)

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Warn("read dir for cleanup", zap.String("dir", dir), zap.Error(err))
			continue
		}

		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.logger.Warn("delete expired entry", zap.String("path", path), zap.Error(err))
				continue
			}
			s.logger.Info("deleted expired entry", zap.String("path", path))
		}
	}
}

// Async 请求成功后顺手触发一次，不阻塞响应
func (s *Sweeper) Async() {
	go s.Sweep()
}
