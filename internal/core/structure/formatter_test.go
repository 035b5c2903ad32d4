package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleStructure() *DatabaseStructure {
	defaultStatus := "'active'"
	return &DatabaseStructure{
		DBType: "postgres",
		Schemas: []SchemaInfo{
			{
				Name:        "public",
				Description: "业务主库",
				Tables: []TableInfo{
					{
						Name:     "orders",
						RowCount: 1200,
						Columns: []ColumnInfo{
							{Name: "id", Type: "integer", IsNullable: false, Constraints: []ColumnConstraint{PrimaryKeyConstraint}},
							{Name: "customer_id", Type: "integer", IsNullable: false, Constraints: []ColumnConstraint{ForeignKeyConstraint}},
							{Name: "status", Type: "varchar(32)", IsNullable: true, DefaultValue: &defaultStatus},
							{Name: "amount", Type: "numeric(10,2)", IsNullable: true, Description: "订单金额"},
						},
						Indexes: []IndexInfo{
							{IndexName: "orders_pkey", IndexType: "btree", Columns: []string{"id"}, IsUnique: true, IsPrimary: true},
							{IndexName: "idx_orders_status", IndexType: "btree", Columns: []string{"status"}},
						},
						ForeignKeys: []ForeignKeyInfo{
							{
								ConstraintName:    "orders_customer_id_fkey",
								Columns:           []string{"customer_id"},
								ReferencedSchema:  "public",
								ReferencedTable:   "customers",
								ReferencedColumns: []string{"id"},
							},
						},
					},
				},
			},
		},
	}
}

func TestFormatStructure_EmptyInput(t *testing.T) {
	assert.Equal(t, "(no schema information available)", FormatStructure(nil, false))
	assert.Equal(t, "(no schema information available)", FormatStructure(&DatabaseStructure{DBType: "postgres"}, true))
}

func TestFormatStructure_Deterministic(t *testing.T) {
	ds := sampleStructure()
	first := FormatStructure(ds, true)
	second := FormatStructure(ds, true)
	// 同一快照必须逐字节一致，缓存与提示词都依赖这一点
	assert.Equal(t, first, second)
}

func TestFormatStructure_CompactOutput(t *testing.T) {
	out := FormatStructure(sampleStructure(), false)

	assert.Contains(t, out, "Database type: postgres")
	assert.Contains(t, out, "Schema: public")
	assert.Contains(t, out, "Table: public.orders")
	assert.Contains(t, out, "- id integer NOT NULL [PRIMARY KEY]")
	assert.Contains(t, out, "- amount numeric(10,2)  -- 订单金额")
	// 外键在紧凑模式下也输出，JOIN 生成依赖它
	assert.Contains(t, out, "FK orders_customer_id_fkey: (customer_id) -> public.customers(id)")

	// 紧凑模式不含索引、默认值和行数
	assert.NotContains(t, out, "INDEX")
	assert.NotContains(t, out, "DEFAULT")
	assert.NotContains(t, out, "~1200 rows")
}

func TestFormatStructure_VerboseOutput(t *testing.T) {
	out := FormatStructure(sampleStructure(), true)

	assert.Contains(t, out, "(~1200 rows)")
	assert.Contains(t, out, "DEFAULT 'active'")
	assert.Contains(t, out, "INDEX idx_orders_status (status) USING btree")
	// 主键索引与 PRIMARY KEY 约束重复，不应再出现
	assert.NotContains(t, out, "INDEX orders_pkey")
}

func TestFormatStructure_SchemaWithoutTables(t *testing.T) {
	ds := &DatabaseStructure{
		DBType:  "postgres",
		Schemas: []SchemaInfo{{Name: "empty_schema"}},
	}
	out := FormatStructure(ds, false)
	assert.Contains(t, out, "Schema: empty_schema")
	assert.Contains(t, out, "(no tables)")
}
