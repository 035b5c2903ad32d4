package charts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cbc3929/bi_agent_server/internal/utils"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// KnowledgeExample 是某个图表族的一条用法示例。
type KnowledgeExample struct {
	Intent string `yaml:"intent"` // 用户意图样例 (英文)
	Spec   string `yaml:"spec"`   // 对应的规格 JSON 样例
}

// KnowledgeData 是一个图表族的用法知识，来自 YAML 文件。
type KnowledgeData struct {
	Family      string             `yaml:"family"`      // 图表族名
	Description string             `yaml:"description"` // 适用场景描述 (英文，拼入提示词)
	BestFor     []string           `yaml:"best_for"`    // 数据形态关键词
	Examples    []KnowledgeExample `yaml:"examples"`    // 用法示例
}

// KnowledgeManager 定义了图表知识管理器的接口
type KnowledgeManager interface {
	// LoadKnowledge 从配置的目录加载所有图表族知识 YAML 文件并缓存。
	LoadKnowledge() error

	// GetFamilyKnowledge 返回指定图表族的缓存知识数据。
	GetFamilyKnowledge(family Family) (KnowledgeData, bool)

	// PromptNotes 把全部已加载知识拼成提示词用的文本。
	// 没有任何知识时返回空字符串。
	PromptNotes() string
}

// knowledgeManager 是 KnowledgeManager 接口的实现。
type knowledgeManager struct {
	knowledgeDir string                   // 存放 YAML 文件的目录
	cache        map[string]KnowledgeData // 图表族名 -> 解析后的 YAML 数据
	mu           sync.RWMutex             // 保护缓存的读写锁
}

// NewKnowledgeManager 创建一个新的图表知识管理器实例。
// knowledgeDir: 包含图表族知识 YAML 文件的目录路径。
func NewKnowledgeManager(knowledgeDir string) KnowledgeManager {
	utils.DefaultLogger.Info("初始化图表知识管理器...", zap.String("directory", knowledgeDir))
	return &knowledgeManager{
		knowledgeDir: knowledgeDir,
		cache:        make(map[string]KnowledgeData),
	}
}

// LoadKnowledge 实现 KnowledgeManager 接口。
func (m *knowledgeManager) LoadKnowledge() error {
	utils.DefaultLogger.Info("开始加载图表知识 YAML 文件...", zap.String("directory", m.knowledgeDir))

	m.mu.Lock()
	defer m.mu.Unlock()

	// 清空旧缓存，确保加载的是最新的
	m.cache = make(map[string]KnowledgeData)

	files, err := os.ReadDir(m.knowledgeDir)
	if err != nil {
		// 目录不存在时记录错误但允许服务器继续运行（提示词中不含知识）
		utils.DefaultLogger.Error("读取图表知识目录失败", zap.String("directory", m.knowledgeDir), zap.Error(err))
		return fmt.Errorf("读取图表知识目录 '%s' 失败: %w", m.knowledgeDir, err)
	}

	loadedCount := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		fileName := file.Name()
		if !strings.HasSuffix(fileName, ".yaml") && !strings.HasSuffix(fileName, ".yml") {
			continue
		}

		familyName := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		filePath := filepath.Join(m.knowledgeDir, fileName)

		yamlData, err := os.ReadFile(filePath)
		if err != nil {
			utils.DefaultLogger.Error("读取图表知识 YAML 文件失败", zap.String("path", filePath), zap.Error(err))
			continue
		}

		var knowledge KnowledgeData
		if err := yaml.Unmarshal(yamlData, &knowledge); err != nil {
			utils.DefaultLogger.Error("解析图表知识 YAML 文件失败", zap.String("path", filePath), zap.Error(err))
			continue
		}
		if knowledge.Family == "" {
			knowledge.Family = familyName
		}

		m.cache[knowledge.Family] = knowledge
		loadedCount++
		utils.DefaultLogger.Info("成功加载并缓存图表知识",
			zap.String("family", knowledge.Family), zap.String("file", fileName))
	}

	utils.DefaultLogger.Info("图表知识加载完成",
		zap.Int("loadedCount", loadedCount), zap.Int("totalFilesChecked", len(files)))
	return nil
}

// GetFamilyKnowledge 实现 KnowledgeManager 接口。
func (m *knowledgeManager) GetFamilyKnowledge(family Family) (KnowledgeData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	knowledge, found := m.cache[string(family)]
	return knowledge, found
}

// PromptNotes 实现 KnowledgeManager 接口。
// 按 AllFamilies 的固定顺序拼接，保证输出确定。
func (m *knowledgeManager) PromptNotes() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.cache) == 0 {
		return ""
	}

	var b strings.Builder
	for _, family := range AllFamilies() {
		knowledge, ok := m.cache[string(family)]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", knowledge.Family, knowledge.Description)
		if len(knowledge.BestFor) > 0 {
			fmt.Fprintf(&b, " (best for: %s)", strings.Join(knowledge.BestFor, ", "))
		}
		b.WriteString("\n")
		for _, example := range knowledge.Examples {
			fmt.Fprintf(&b, "  example: %s -> %s\n", example.Intent, example.Spec)
		}
	}
	return b.String()
}
