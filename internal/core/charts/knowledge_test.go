package charts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lineKnowledgeYAML = `family: line
description: Best for showing trends over a continuous axis such as time.
best_for:
  - time series
  - trends
examples:
  - intent: monthly revenue trend
    spec: '{"family":"line","x_field":"month","y_fields":["revenue"]}'
`

func TestKnowledgeManager_LoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "line.yaml"), []byte(lineKnowledgeYAML), 0o644))
	// 非 YAML 文件被忽略
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("忽略我"), 0o644))

	m := NewKnowledgeManager(dir)
	require.NoError(t, m.LoadKnowledge())

	knowledge, found := m.GetFamilyKnowledge(FamilyLine)
	require.True(t, found)
	assert.Equal(t, "line", knowledge.Family)
	assert.Contains(t, knowledge.BestFor, "time series")
	require.Len(t, knowledge.Examples, 1)

	_, found = m.GetFamilyKnowledge(FamilyPie)
	assert.False(t, found)
}

func TestKnowledgeManager_FamilyDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bar.yml"),
		[]byte("description: Compare values across categories.\n"), 0o644))

	m := NewKnowledgeManager(dir)
	require.NoError(t, m.LoadKnowledge())

	knowledge, found := m.GetFamilyKnowledge(FamilyBar)
	require.True(t, found)
	assert.Equal(t, "bar", knowledge.Family)
}

func TestKnowledgeManager_PromptNotes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "line.yaml"), []byte(lineKnowledgeYAML), 0o644))

	m := NewKnowledgeManager(dir)

	// 加载前没有任何知识
	assert.Empty(t, m.PromptNotes())

	require.NoError(t, m.LoadKnowledge())
	notes := m.PromptNotes()
	assert.Contains(t, notes, "- line: Best for showing trends")
	assert.Contains(t, notes, "best for: time series, trends")
	assert.Contains(t, notes, "example: monthly revenue trend")
}

func TestKnowledgeManager_MissingDirectory(t *testing.T) {
	m := NewKnowledgeManager(filepath.Join(t.TempDir(), "不存在的目录"))
	assert.Error(t, m.LoadKnowledge())
	// 加载失败后仍可安全使用，提示词中不含知识
	assert.Empty(t, m.PromptNotes())
}
