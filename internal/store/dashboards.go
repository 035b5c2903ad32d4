package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Dashboard 是图表 ID 的有序引用列表。看板只引用图表，不拥有它们；
// 被引用的图表删除后，加载看板时按缺失项跳过。
type Dashboard struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	ChartIDs  []string  `json:"chart_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DashboardStore 管理看板的持久化。所有操作都要求所有者匹配。
type DashboardStore struct {
	col *collection[*Dashboard]
}

// NewDashboardStore 创建看板存储。
func NewDashboardStore(dataDir string) (*DashboardStore, error) {
	col, err := newCollection[*Dashboard](dataDir, "dashboards")
	if err != nil {
		return nil, err
	}
	return &DashboardStore{col: col}, nil
}

// Create 保存一个新看板并返回生成的 ID。
func (s *DashboardStore) Create(dashboard *Dashboard) (*Dashboard, error) {
	now := time.Now()
	dashboard.ID = uuid.NewString()
	dashboard.CreatedAt = now
	dashboard.UpdatedAt = now
	if dashboard.ChartIDs == nil {
		dashboard.ChartIDs = []string{}
	}

	s.col.items.Set(dashboard.ID, dashboard)
	if err := s.col.persist(); err != nil {
		s.col.items.Remove(dashboard.ID)
		return nil, err
	}
	return dashboard, nil
}

// Get 按 ID 取看板，所有者不匹配按不存在处理。
func (s *DashboardStore) Get(id, userID string) (*Dashboard, error) {
	dashboard, ok := s.col.items.Get(id)
	if !ok || dashboard.UserID != userID {
		return nil, ErrNotFound
	}
	return dashboard, nil
}

// List 返回用户的全部看板，按更新时间倒序。
func (s *DashboardStore) List(userID string) []*Dashboard {
	var out []*Dashboard
	for _, dashboard := range s.col.items.Items() {
		if dashboard.UserID == userID {
			out = append(out, dashboard)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Update 更新看板的名称与图表引用列表。
func (s *DashboardStore) Update(id, userID string, mutate func(*Dashboard)) (*Dashboard, error) {
	dashboard, err := s.Get(id, userID)
	if err != nil {
		return nil, err
	}

	mutate(dashboard)
	dashboard.UpdatedAt = time.Now()

	s.col.items.Set(id, dashboard)
	if err := s.col.persist(); err != nil {
		return nil, err
	}
	return dashboard, nil
}

// Delete 删除看板。被引用的图表不受影响。
func (s *DashboardStore) Delete(id, userID string) error {
	if _, err := s.Get(id, userID); err != nil {
		return err
	}
	s.col.items.Remove(id)
	return s.col.persist()
}
