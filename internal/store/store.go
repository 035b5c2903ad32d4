// Package store 提供图表、看板与会话的 JSON 文件持久化。
// 每类实体一个集合文件，内存中用并发安全的映射做主副本，
// 变更后整体落盘 (临时文件 + 重命名保证原子性)。
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// ErrNotFound 表示记录不存在，或调用者不是记录的所有者。
// 两种情况对外不作区分，避免泄露他人记录的存在性。
var ErrNotFound = errors.New("记录不存在")

// collection 是一个实体集合：内存映射 + 单一 JSON 文件。
type collection[T any] struct {
	path    string
	writeMu sync.Mutex // 串行化落盘
	items   cmap.ConcurrentMap[string, T]
}

// newCollection 创建集合并加载已有文件 (文件不存在视为空集合)。
func newCollection[T any](dataDir, name string) (*collection[T], error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	c := &collection[T]{
		path:  filepath.Join(dataDir, name+".json"),
		items: cmap.New[T](),
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("读取数据文件 %s 失败: %w", c.path, err)
	}

	loaded := make(map[string]T)
	if err := sonic.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("解析数据文件 %s 失败: %w", c.path, err)
	}
	for id, item := range loaded {
		c.items.Set(id, item)
	}
	utils.DefaultLogger.Info("数据集合加载完成",
		zap.String("path", c.path), zap.Int("count", len(loaded)))
	return c, nil
}

// persist 把当前内存状态整体写入文件。
func (c *collection[T]) persist() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	snapshot := c.items.Items()
	encoded, err := sonic.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("序列化数据集合失败: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("写入数据文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("替换数据文件失败: %w", err)
	}
	return nil
}
