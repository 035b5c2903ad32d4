package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartStore_CRUD(t *testing.T) {
	s, err := NewChartStore(t.TempDir())
	require.NoError(t, err)

	created, err := s.Create(&Chart{
		UserID:   "alice",
		Title:    "月度销售额",
		SpecJSON: `{"family":"line","x_field":"month","y_fields":["amount"]}`,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "月度销售额", got.Title)

	updated, err := s.Update(created.ID, "alice", func(c *Chart) {
		c.Title = "月度销售额趋势"
	})
	require.NoError(t, err)
	assert.Equal(t, "月度销售额趋势", updated.Title)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	require.NoError(t, s.Delete(created.ID, "alice"))
	_, err = s.Get(created.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChartStore_OwnerIsolation(t *testing.T) {
	s, err := NewChartStore(t.TempDir())
	require.NoError(t, err)

	created, err := s.Create(&Chart{UserID: "alice", Title: "图表"})
	require.NoError(t, err)

	// 别人的记录和不存在的记录表现完全一致
	_, err = s.Get(created.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update(created.ID, "bob", func(c *Chart) { c.Title = "改名" })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(created.ID, "bob"), ErrNotFound)

	assert.Empty(t, s.List("bob"))
	assert.Len(t, s.List("alice"), 1)
}

func TestChartStore_ListSortedByUpdatedAt(t *testing.T) {
	s, err := NewChartStore(t.TempDir())
	require.NoError(t, err)

	first, err := s.Create(&Chart{UserID: "alice", Title: "旧图表"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.Create(&Chart{UserID: "alice", Title: "新图表"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.Update(first.ID, "alice", func(c *Chart) { c.Title = "刚更新的旧图表" })
	require.NoError(t, err)

	list := s.List("alice")
	require.Len(t, list, 2)
	assert.Equal(t, "刚更新的旧图表", list[0].Title)
	assert.Equal(t, "新图表", list[1].Title)
}

func TestChartStore_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewChartStore(dir)
	require.NoError(t, err)
	created, err := s.Create(&Chart{
		UserID:   "alice",
		Title:    "月度销售额",
		SpecJSON: `{"family":"bar","x_field":"month","y_fields":["amount"]}`,
		Query:    "SELECT month, amount FROM orders",
	})
	require.NoError(t, err)

	// 重新打开同一目录，数据应完整回来
	reopened, err := NewChartStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.SpecJSON, got.SpecJSON)
	assert.Equal(t, created.Query, got.Query)
}
