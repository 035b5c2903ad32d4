package store

import (
	"sort"
	"time"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/google/uuid"
)

// Chart 是用户显式保存的图表。
// 数据快照随图表一起保存，之后查看不需要重新执行查询。
type Chart struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"` // 所有者，跨用户不可见
	Title     string                 `json:"title"`
	SpecJSON  string                 `json:"spec_json"`           // 图表规格原文
	Data      *databases.QueryResult `json:"data,omitempty"`      // 底层数据快照
	Query     string                 `json:"query,omitempty"`     // 产生数据的查询
	ConnID    string                 `json:"conn_id,omitempty"`   // 数据来源连接
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ChartStore 管理图表的持久化。所有操作都要求所有者匹配。
type ChartStore struct {
	col *collection[*Chart]
}

// NewChartStore 创建图表存储。
func NewChartStore(dataDir string) (*ChartStore, error) {
	col, err := newCollection[*Chart](dataDir, "charts")
	if err != nil {
		return nil, err
	}
	return &ChartStore{col: col}, nil
}

// Create 保存一张新图表并返回生成的 ID。
func (s *ChartStore) Create(chart *Chart) (*Chart, error) {
	now := time.Now()
	chart.ID = uuid.NewString()
	chart.CreatedAt = now
	chart.UpdatedAt = now

	s.col.items.Set(chart.ID, chart)
	if err := s.col.persist(); err != nil {
		s.col.items.Remove(chart.ID)
		return nil, err
	}
	return chart, nil
}

// Get 按 ID 取图表，所有者不匹配按不存在处理。
func (s *ChartStore) Get(id, userID string) (*Chart, error) {
	chart, ok := s.col.items.Get(id)
	if !ok || chart.UserID != userID {
		return nil, ErrNotFound
	}
	return chart, nil
}

// List 返回用户的全部图表，按更新时间倒序。
func (s *ChartStore) List(userID string) []*Chart {
	var out []*Chart
	for _, chart := range s.col.items.Items() {
		if chart.UserID == userID {
			out = append(out, chart)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Update 更新图表的规格、标题与数据快照。
func (s *ChartStore) Update(id, userID string, mutate func(*Chart)) (*Chart, error) {
	chart, err := s.Get(id, userID)
	if err != nil {
		return nil, err
	}

	mutate(chart)
	chart.UpdatedAt = time.Now()

	s.col.items.Set(id, chart)
	if err := s.col.persist(); err != nil {
		return nil, err
	}
	return chart, nil
}

// Delete 删除图表。
func (s *ChartStore) Delete(id, userID string) error {
	if _, err := s.Get(id, userID); err != nil {
		return err
	}
	s.col.items.Remove(id)
	return s.col.persist()
}
