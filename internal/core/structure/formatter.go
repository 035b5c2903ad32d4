package structure

import (
	"fmt"
	"strings"
)

// FormatStructure 把结构快照序列化为提示词使用的文本形式。
// 同一快照的输出是逐字节确定的：遍历顺序就是探查时 ORDER BY 的顺序，
// 不做任何截断。verbose 为 true 时额外包含索引、默认值与大致行数。
// 输出使用英文，因为它会被拼进英文的 LLM 提示词。
func FormatStructure(ds *DatabaseStructure, verbose bool) string {
	if ds == nil || len(ds.Schemas) == 0 {
		return "(no schema information available)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database type: %s\n", ds.DBType)

	for _, schema := range ds.Schemas {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Schema: %s", schema.Name)
		if schema.Description != "" {
			fmt.Fprintf(&b, "  -- %s", schema.Description)
		}
		b.WriteString("\n")

		if len(schema.Tables) == 0 {
			b.WriteString("  (no tables)\n")
			continue
		}

		for _, table := range schema.Tables {
			formatTable(&b, schema.Name, &table, verbose)
		}
	}

	return b.String()
}

func formatTable(b *strings.Builder, schemaName string, table *TableInfo, verbose bool) {
	fmt.Fprintf(b, "\nTable: %s.%s", schemaName, table.Name)
	if table.Description != "" {
		fmt.Fprintf(b, "  -- %s", table.Description)
	}
	if verbose && table.RowCount > 0 {
		fmt.Fprintf(b, "  (~%d rows)", table.RowCount)
	}
	b.WriteString("\n")

	for _, col := range table.Columns {
		fmt.Fprintf(b, "  - %s %s", col.Name, col.Type)
		if !col.IsNullable {
			b.WriteString(" NOT NULL")
		}
		for _, c := range col.Constraints {
			fmt.Fprintf(b, " [%s]", c)
		}
		if verbose && col.DefaultValue != nil && *col.DefaultValue != "" {
			fmt.Fprintf(b, " DEFAULT %s", *col.DefaultValue)
		}
		if col.Description != "" {
			fmt.Fprintf(b, "  -- %s", col.Description)
		}
		b.WriteString("\n")
	}

	for _, fk := range table.ForeignKeys {
		fmt.Fprintf(b, "  FK %s: (%s) -> %s.%s(%s)\n",
			fk.ConstraintName,
			strings.Join(fk.Columns, ", "),
			fk.ReferencedSchema,
			fk.ReferencedTable,
			strings.Join(fk.ReferencedColumns, ", "))
	}

	if verbose {
		for _, idx := range table.Indexes {
			if idx.IsPrimary {
				continue // 主键索引与 PRIMARY KEY 约束重复，略过
			}
			fmt.Fprintf(b, "  INDEX %s (%s) USING %s",
				idx.IndexName, strings.Join(idx.Columns, ", "), idx.IndexType)
			if idx.IsUnique {
				b.WriteString(" UNIQUE")
			}
			b.WriteString("\n")
		}
	}
}
