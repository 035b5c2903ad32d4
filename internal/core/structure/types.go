package structure

// 约束
type ColumnConstraint string

// 约束的种类
const (
	PrimaryKeyConstraint ColumnConstraint = "PRIMARY KEY"
	ForeignKeyConstraint ColumnConstraint = "FOREIGN KEY"
	UniqueConstraint     ColumnConstraint = "UNIQUE"
	CheckConstraint      ColumnConstraint = "CHECK"
	NotNullConstraint    ColumnConstraint = "NOT NULL" // 通常由 IsNullable 字段表示
)

// 外键信息
type ForeignKeyInfo struct {
	ConstraintName    string   `json:"name" yaml:"name"`                                   // 约束名称
	Columns           []string `json:"columns" yaml:"columns"`                             // 此表中参与外键的列
	ReferencedSchema  string   `json:"referenced_schema" yaml:"referenced_schema"`         // 引用的 Schema
	ReferencedTable   string   `json:"referenced_table" yaml:"referenced_table"`           // 引用的表
	ReferencedColumns []string `json:"referenced_columns" yaml:"referenced_columns"`       // 引用的列
	Description       string   `json:"description,omitempty" yaml:"description,omitempty"` // (可选) 约束的注释
}

// 索引信息
type IndexInfo struct {
	IndexName   string   `json:"name" yaml:"name"`                                   // 索引名称
	IndexType   string   `json:"type" yaml:"type"`                                   // 索引类型 (e.g., btree, hash, gin)
	Columns     []string `json:"columns" yaml:"columns"`                             // 索引包含的列名
	IsUnique    bool     `json:"is_unique" yaml:"is_unique"`                         // 是否唯一索引
	IsPrimary   bool     `json:"is_primary" yaml:"is_primary"`                       // 是否主键索引
	Description string   `json:"description,omitempty" yaml:"description,omitempty"` // (可选) 索引的注释
}

// 列的信息
type ColumnInfo struct {
	Name         string             `json:"name" yaml:"name"`                                   // 列名
	Type         string             `json:"type" yaml:"type"`                                   // 数据类型 (e.g., integer, varchar(255))
	IsNullable   bool               `json:"nullable" yaml:"nullable"`                           // 是否允许 NULL 值
	DefaultValue *string            `json:"default,omitempty" yaml:"default,omitempty"`         // 默认值 (可能为 NULL)
	Description  string             `json:"description,omitempty" yaml:"description,omitempty"` // 列注释
	Constraints  []ColumnConstraint `json:"constraints,omitempty" yaml:"constraints,omitempty"` // 应用于此列的约束类型
}

// 表的信息
type TableInfo struct {
	Name        string           `json:"name" yaml:"name"`                                     // 表名
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`   // 表注释
	RowCount    int64            `json:"row_count" yaml:"row_count"`                           // 大致行数
	Columns     []ColumnInfo     `json:"columns" yaml:"columns"`                               // 表的列信息
	Indexes     []IndexInfo      `json:"indexes,omitempty" yaml:"indexes,omitempty"`           // 表的索引信息
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"` // 表的外键信息
}

// 架构的信息
type SchemaInfo struct {
	Name        string      `json:"name" yaml:"name"`                                   // Schema 名称
	Description string      `json:"description,omitempty" yaml:"description,omitempty"` // Schema 注释
	Tables      []TableInfo `json:"tables" yaml:"tables"`                               // Schema 下的表信息
}

// DatabaseStructure 是一个连接的完整数据库结构快照。
// MySQL 没有独立的 schema 层级，此时 Schemas 只含当前数据库一个元素。
type DatabaseStructure struct {
	DBType  string       `json:"db_type" yaml:"db_type"` // "postgres" 或 "mysql"
	Schemas []SchemaInfo `json:"schemas" yaml:"schemas"` // 数据库中的所有相关 Schema
}

// SchemaUnavailableError 表示无法从数据库获取结构信息。
// 收到该错误时管线直接终止，不进入生成阶段。
type SchemaUnavailableError struct {
	Message string
}

func (e *SchemaUnavailableError) Error() string {
	return e.Message
}
