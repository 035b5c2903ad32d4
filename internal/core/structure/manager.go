package structure

import (
	"context"
	"fmt"

	"github.com/cbc3929/bi_agent_server/internal/core/databases"
	"github.com/cbc3929/bi_agent_server/internal/utils"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Manager 定义了数据库结构管理器的接口
type Manager interface {
	// LoadStructure 从数据库加载结构信息并按 connID 缓存。
	// 加载失败返回 *SchemaUnavailableError。
	LoadStructure(ctx context.Context, connID string) error

	// GetStructure 返回指定连接缓存的结构信息。
	GetStructure(connID string) (*DatabaseStructure, bool)

	// EnsureStructure 返回缓存的结构信息，缓存缺失时先触发一次加载。
	EnsureStructure(ctx context.Context, connID string) (*DatabaseStructure, error)

	// Invalidate 丢弃指定连接的缓存（连接断开或用户手动刷新时调用）。
	Invalidate(connID string)
}

// manager 是 Manager 接口的实现，按 connID 维护结构快照。
type manager struct {
	dbService databases.Service                              // 数据库服务依赖
	cache     cmap.ConcurrentMap[string, *DatabaseStructure] // connID -> 结构快照
}

// NewManager 创建一个新的结构管理器实例。
func NewManager(dbService databases.Service) Manager {
	utils.DefaultLogger.Info("初始化数据库结构管理器...")
	return &manager{
		dbService: dbService,
		cache:     cmap.New[*DatabaseStructure](),
	}
}

// LoadStructure 实现 Manager 接口。
func (m *manager) LoadStructure(ctx context.Context, connID string) error {
	dbType, found := m.dbService.ConnectionType(connID)
	if !found {
		return &SchemaUnavailableError{Message: fmt.Sprintf("连接未注册: %s", connID)}
	}

	utils.DefaultLogger.Info("开始加载数据库结构信息...",
		zap.String("connID", connID), zap.String("dbType", dbType))

	var (
		ds  *DatabaseStructure
		err error
	)
	switch dbType {
	case databases.TypeMySQL:
		ds, err = m.loadMySQL(ctx, connID)
	default:
		ds, err = m.loadPostgres(ctx, connID)
	}
	if err != nil {
		utils.DefaultLogger.Error("加载数据库结构失败", zap.String("connID", connID), zap.Error(err))
		return &SchemaUnavailableError{Message: fmt.Sprintf("加载数据库结构失败: %v", err)}
	}

	m.cache.Set(connID, ds)
	utils.DefaultLogger.Info("数据库结构信息加载并缓存完成",
		zap.String("connID", connID), zap.Int("schemaCount", len(ds.Schemas)))
	return nil
}

// GetStructure 实现 Manager 接口。
func (m *manager) GetStructure(connID string) (*DatabaseStructure, bool) {
	return m.cache.Get(connID)
}

// EnsureStructure 实现 Manager 接口。
func (m *manager) EnsureStructure(ctx context.Context, connID string) (*DatabaseStructure, error) {
	if ds, ok := m.cache.Get(connID); ok {
		return ds, nil
	}
	if err := m.LoadStructure(ctx, connID); err != nil {
		return nil, err
	}
	ds, ok := m.cache.Get(connID)
	if !ok {
		return nil, &SchemaUnavailableError{Message: "结构加载后缓存仍为空"}
	}
	return ds, nil
}

// Invalidate 实现 Manager 接口。
func (m *manager) Invalidate(connID string) {
	m.cache.Remove(connID)
}

// --- Postgres 结构探查 ---

func (m *manager) loadPostgres(ctx context.Context, connID string) (*DatabaseStructure, error) {
	ds := &DatabaseStructure{DBType: databases.TypePostgres, Schemas: []SchemaInfo{}}

	// 1. 获取所有用户相关的 Schema
	schemas, err := m.fetchPgSchemas(ctx, connID)
	if err != nil {
		return nil, fmt.Errorf("获取 Schema 列表失败: %w", err)
	}
	if len(schemas) == 0 {
		utils.DefaultLogger.Warn("未在数据库中找到用户相关的 Schema", zap.String("connID", connID))
		return ds, nil
	}

	ds.Schemas = make([]SchemaInfo, 0, len(schemas))
	for _, s := range schemas {
		schemaInfo := SchemaInfo{
			Name:        dbString(s["schema_name"]),
			Description: dbString(s["description"]),
			Tables:      []TableInfo{},
		}

		// 2. 获取当前 Schema 下的所有表
		tables, err := m.fetchPgTables(ctx, connID, schemaInfo.Name)
		if err != nil {
			utils.DefaultLogger.Error("获取表信息失败",
				zap.String("schema", schemaInfo.Name), zap.String("connID", connID), zap.Error(err))
			// 单个 Schema 失败不阻断整体加载
			continue
		}
		schemaInfo.Tables = make([]TableInfo, 0, len(tables))

		// 3. 获取每个表的详细信息 (列, 索引, 外键)
		for _, t := range tables {
			tableName := dbString(t["table_name"])
			tableInfo := TableInfo{
				Name:        tableName,
				Description: dbString(t["description"]),
				RowCount:    dbInt64(t["row_count"]),
				Columns:     []ColumnInfo{},
				Indexes:     []IndexInfo{},
				ForeignKeys: []ForeignKeyInfo{},
			}

			columns, err := m.fetchPgColumns(ctx, connID, schemaInfo.Name, tableName)
			if err != nil {
				utils.DefaultLogger.Error("获取列信息失败",
					zap.String("schema", schemaInfo.Name), zap.String("table", tableName), zap.Error(err))
				continue
			}
			tableInfo.Columns = columns

			indexes, err := m.fetchPgIndexes(ctx, connID, schemaInfo.Name, tableName)
			if err != nil {
				utils.DefaultLogger.Error("获取索引信息失败",
					zap.String("schema", schemaInfo.Name), zap.String("table", tableName), zap.Error(err))
			} else {
				tableInfo.Indexes = indexes
			}

			foreignKeys, err := m.fetchPgForeignKeys(ctx, connID, schemaInfo.Name, tableName)
			if err != nil {
				utils.DefaultLogger.Error("获取外键信息失败",
					zap.String("schema", schemaInfo.Name), zap.String("table", tableName), zap.Error(err))
			} else {
				tableInfo.ForeignKeys = foreignKeys
			}

			schemaInfo.Tables = append(schemaInfo.Tables, tableInfo)
		}
		ds.Schemas = append(ds.Schemas, schemaInfo)
	}

	return ds, nil
}

func (m *manager) fetchPgSchemas(ctx context.Context, connID string) ([]map[string]any, error) {
	query := `
        SELECT
            schema_name,
            obj_description(pg_namespace.oid, 'pg_namespace') as description
        FROM information_schema.schemata
        JOIN pg_namespace ON pg_namespace.nspname = schema_name
        WHERE
            schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
            AND schema_name NOT LIKE 'pg\_%' ESCAPE '\'
            AND schema_name NOT LIKE 'topolo%' -- 排除 postgis 的 schema
        ORDER BY schema_name
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func (m *manager) fetchPgTables(ctx context.Context, connID, schemaName string) ([]map[string]any, error) {
	query := `
        SELECT
            t.table_name,
            obj_description(c.oid, 'pg_class') as description,
            c.reltuples::bigint as row_count -- pg_class.reltuples 的大致行数
        FROM information_schema.tables t
        JOIN pg_namespace n ON t.table_schema = n.nspname
        JOIN pg_class c ON t.table_name = c.relname AND n.oid = c.relnamespace
        WHERE
            t.table_schema = $1
            AND t.table_type = 'BASE TABLE'
            AND c.relkind = 'r'
            AND t.table_name NOT LIKE 'spatia%' -- Postgis 的空间坐标系表排除
        ORDER BY t.table_name
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, schemaName)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func (m *manager) fetchPgColumns(ctx context.Context, connID, schemaName, tableName string) ([]ColumnInfo, error) {
	queryColumns := `
        SELECT
            c.column_name,
            format_type(a.atttypid, a.atttypmod) AS formatted_type,
            c.is_nullable,
            c.column_default,
            col_description(cls.oid, c.ordinal_position) as description
        FROM information_schema.columns c
        JOIN pg_namespace ns ON c.table_schema = ns.nspname
        JOIN pg_class cls ON c.table_name = cls.relname AND ns.oid = cls.relnamespace
        JOIN pg_attribute a ON a.attrelid = cls.oid AND a.attname = c.column_name
        WHERE
            c.table_schema = $1 AND
            c.table_name = $2
            AND cls.relkind = 'r'
            AND a.attnum > 0
            AND NOT a.attisdropped
        ORDER BY c.ordinal_position
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, queryColumns, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	// 获取表的所有约束信息，以便按列匹配
	constraints, err := m.fetchPgConstraints(ctx, connID, schemaName, tableName)
	if err != nil {
		utils.DefaultLogger.Warn("获取约束信息失败，列信息中将缺少约束详情",
			zap.String("schema", schemaName), zap.String("table", tableName), zap.Error(err))
		constraints = nil
	}

	columns := make([]ColumnInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		colName := dbString(row["column_name"])
		col := ColumnInfo{
			Name:         colName,
			Type:         dbString(row["formatted_type"]),
			IsNullable:   dbString(row["is_nullable"]) == "YES",
			DefaultValue: dbStringPtr(row["column_default"]),
			Description:  dbString(row["description"]),
			Constraints:  []ColumnConstraint{},
		}

		for _, constr := range constraints {
			constrCols := interfaceSliceToStringSlice(constr["column_names"])
			constrTypeDesc := dbString(constr["constraint_type_desc"])
			if stringInSlice(colName, constrCols) {
				// 外键单独挂在表上，NotNull 由 IsNullable 表示
				cc := ColumnConstraint(constrTypeDesc)
				if cc != ForeignKeyConstraint && constrTypeDesc != "" {
					col.Constraints = append(col.Constraints, cc)
				}
			}
		}

		columns = append(columns, col)
	}

	return columns, nil
}

func (m *manager) fetchPgIndexes(ctx context.Context, connID, schemaName, tableName string) ([]IndexInfo, error) {
	query := `
        SELECT
            i.relname as index_name,
            am.amname as index_type,
            ix.indisunique as is_unique,
            ix.indisprimary as is_primary,
            obj_description(i.oid, 'pg_class') as description,
            array_agg(
                CASE
                    WHEN ix.indkey[k.attpos] > 0 THEN a.attname
                    ELSE pg_get_indexdef(i.oid, k.i::int, false) -- 表达式索引
                END
                ORDER BY k.i
            ) as column_names
        FROM
            pg_index ix
        JOIN pg_class i ON i.oid = ix.indexrelid
        JOIN pg_class t ON t.oid = ix.indrelid
        JOIN pg_namespace n ON n.oid = t.relnamespace
        JOIN pg_am am ON i.relam = am.oid
        LEFT JOIN
            generate_subscripts(ix.indkey, 1) WITH ORDINALITY AS k(attpos, i) ON TRUE
        LEFT JOIN
            pg_attribute a ON a.attrelid = t.oid AND a.attnum = ix.indkey[k.attpos]
        WHERE
            n.nspname = $1
            AND t.relname = $2
            AND ix.indislive
        GROUP BY
            i.relname, i.oid, am.amname, ix.indisunique, ix.indisprimary
        ORDER BY
            i.relname
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	indexes := make([]IndexInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		idx := IndexInfo{
			IndexName:   dbString(row["index_name"]),
			IndexType:   dbString(row["index_type"]),
			Columns:     interfaceSliceToStringSlice(row["column_names"]),
			IsUnique:    dbBool(row["is_unique"]),
			IsPrimary:   dbBool(row["is_primary"]),
			Description: dbString(row["description"]),
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (m *manager) fetchPgForeignKeys(ctx context.Context, connID, schemaName, tableName string) ([]ForeignKeyInfo, error) {
	query := `
        SELECT
            c.conname as constraint_name,
            ARRAY_AGG(col.attname ORDER BY u.attposition) as column_names,
            nr.nspname as referenced_schema,
            ref_table.relname as referenced_table,
            ARRAY_AGG(ref_col.attname ORDER BY u2.attposition) as referenced_columns,
            obj_description(c.oid, 'pg_constraint') as description
        FROM
            pg_constraint c
        JOIN pg_namespace n ON n.oid = c.connamespace
        JOIN pg_class t ON t.oid = c.conrelid
        JOIN pg_class ref_table ON ref_table.oid = c.confrelid
        JOIN pg_namespace nr ON nr.oid = ref_table.relnamespace
        LEFT JOIN
            LATERAL unnest(c.conkey) WITH ORDINALITY AS u(attnum, attposition) ON TRUE
        LEFT JOIN
            pg_attribute col ON col.attrelid = t.oid AND col.attnum = u.attnum
        LEFT JOIN
            LATERAL unnest(c.confkey) WITH ORDINALITY AS u2(attnum, attposition) ON TRUE
        LEFT JOIN
            pg_attribute ref_col ON ref_col.attrelid = c.confrelid AND ref_col.attnum = u2.attnum
        WHERE
            n.nspname = $1
            AND t.relname = $2
            AND c.contype = 'f'
        GROUP BY
            c.conname, nr.nspname, ref_table.relname, c.oid
        ORDER BY
            c.conname
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	foreignKeys := make([]ForeignKeyInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		fk := ForeignKeyInfo{
			ConstraintName:    dbString(row["constraint_name"]),
			Columns:           interfaceSliceToStringSlice(row["column_names"]),
			ReferencedSchema:  dbString(row["referenced_schema"]),
			ReferencedTable:   dbString(row["referenced_table"]),
			ReferencedColumns: interfaceSliceToStringSlice(row["referenced_columns"]),
			Description:       dbString(row["description"]),
		}
		foreignKeys = append(foreignKeys, fk)
	}
	return foreignKeys, nil
}

// fetchPgConstraints 获取指定表的所有约束信息 (供内部按列匹配)
func (m *manager) fetchPgConstraints(ctx context.Context, connID, schemaName, tableName string) ([]map[string]any, error) {
	query := `
        SELECT
            c.conname as constraint_name,
            CASE
                WHEN c.contype = 'p' THEN 'PRIMARY KEY'
                WHEN c.contype = 'u' THEN 'UNIQUE'
                WHEN c.contype = 'f' THEN 'FOREIGN KEY'
                WHEN c.contype = 'c' THEN 'CHECK'
                ELSE 'OTHER'
            END as constraint_type_desc,
            ARRAY_AGG(col.attname ORDER BY u.attposition) filter (where col.attname is not null) as column_names
        FROM
            pg_constraint c
        JOIN pg_namespace n ON n.oid = c.connamespace
        JOIN pg_class t ON t.oid = c.conrelid
        LEFT JOIN
            LATERAL unnest(c.conkey) WITH ORDINALITY AS u(attnum, attposition) ON TRUE
        LEFT JOIN
            pg_attribute col ON col.attrelid = t.oid AND col.attnum = u.attnum
        WHERE
            n.nspname = $1
            AND t.relname = $2
        GROUP BY
            c.conname, c.contype
        ORDER BY
            c.contype, c.conname
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// --- MySQL 结构探查 ---

// loadMySQL 通过 information_schema 加载当前数据库的结构。
// MySQL 没有独立的 schema 层级，整个数据库作为唯一的 SchemaInfo 返回。
func (m *manager) loadMySQL(ctx context.Context, connID string) (*DatabaseStructure, error) {
	ds := &DatabaseStructure{DBType: databases.TypeMySQL, Schemas: []SchemaInfo{}}

	dbNameResult, err := m.dbService.ExecuteQuery(ctx, connID, `SELECT DATABASE() AS db_name`)
	if err != nil {
		return nil, fmt.Errorf("获取当前数据库名失败: %w", err)
	}
	dbName := ""
	if len(dbNameResult.Rows) > 0 {
		dbName = dbString(dbNameResult.Rows[0]["db_name"])
	}
	if dbName == "" {
		return nil, fmt.Errorf("连接字符串未指定数据库名")
	}

	schemaInfo := SchemaInfo{Name: dbName, Tables: []TableInfo{}}

	tablesQuery := `
        SELECT
            TABLE_NAME AS table_name,
            TABLE_COMMENT AS description,
            TABLE_ROWS AS row_count
        FROM information_schema.TABLES
        WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
        ORDER BY TABLE_NAME
    `
	tables, err := m.dbService.ExecuteQuery(ctx, connID, tablesQuery, dbName)
	if err != nil {
		return nil, fmt.Errorf("获取表信息失败: %w", err)
	}

	for _, t := range tables.Rows {
		tableName := dbString(t["table_name"])
		tableInfo := TableInfo{
			Name:        tableName,
			Description: dbString(t["description"]),
			RowCount:    dbInt64(t["row_count"]),
			Columns:     []ColumnInfo{},
			Indexes:     []IndexInfo{},
			ForeignKeys: []ForeignKeyInfo{},
		}

		columns, err := m.fetchMySQLColumns(ctx, connID, dbName, tableName)
		if err != nil {
			utils.DefaultLogger.Error("获取列信息失败",
				zap.String("table", tableName), zap.Error(err))
			continue
		}
		tableInfo.Columns = columns

		indexes, err := m.fetchMySQLIndexes(ctx, connID, dbName, tableName)
		if err != nil {
			utils.DefaultLogger.Error("获取索引信息失败",
				zap.String("table", tableName), zap.Error(err))
		} else {
			tableInfo.Indexes = indexes
		}

		foreignKeys, err := m.fetchMySQLForeignKeys(ctx, connID, dbName, tableName)
		if err != nil {
			utils.DefaultLogger.Error("获取外键信息失败",
				zap.String("table", tableName), zap.Error(err))
		} else {
			tableInfo.ForeignKeys = foreignKeys
		}

		schemaInfo.Tables = append(schemaInfo.Tables, tableInfo)
	}

	ds.Schemas = append(ds.Schemas, schemaInfo)
	return ds, nil
}

func (m *manager) fetchMySQLColumns(ctx context.Context, connID, dbName, tableName string) ([]ColumnInfo, error) {
	query := `
        SELECT
            COLUMN_NAME AS column_name,
            COLUMN_TYPE AS column_type,
            IS_NULLABLE AS is_nullable,
            COLUMN_DEFAULT AS column_default,
            COLUMN_COMMENT AS description,
            COLUMN_KEY AS column_key
        FROM information_schema.COLUMNS
        WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
        ORDER BY ORDINAL_POSITION
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, dbName, tableName)
	if err != nil {
		return nil, err
	}

	columns := make([]ColumnInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		col := ColumnInfo{
			Name:         dbString(row["column_name"]),
			Type:         dbString(row["column_type"]),
			IsNullable:   dbString(row["is_nullable"]) == "YES",
			DefaultValue: dbStringPtr(row["column_default"]),
			Description:  dbString(row["description"]),
			Constraints:  []ColumnConstraint{},
		}
		// COLUMN_KEY: PRI / UNI / MUL
		switch dbString(row["column_key"]) {
		case "PRI":
			col.Constraints = append(col.Constraints, PrimaryKeyConstraint)
		case "UNI":
			col.Constraints = append(col.Constraints, UniqueConstraint)
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (m *manager) fetchMySQLIndexes(ctx context.Context, connID, dbName, tableName string) ([]IndexInfo, error) {
	query := `
        SELECT
            INDEX_NAME AS index_name,
            INDEX_TYPE AS index_type,
            NON_UNIQUE AS non_unique,
            GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX SEPARATOR ',') AS column_names
        FROM information_schema.STATISTICS
        WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
        GROUP BY INDEX_NAME, INDEX_TYPE, NON_UNIQUE
        ORDER BY INDEX_NAME
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, dbName, tableName)
	if err != nil {
		return nil, err
	}

	indexes := make([]IndexInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		name := dbString(row["index_name"])
		idx := IndexInfo{
			IndexName: name,
			IndexType: dbString(row["index_type"]),
			Columns:   splitCommaList(dbString(row["column_names"])),
			IsUnique:  dbInt64(row["non_unique"]) == 0,
			IsPrimary: name == "PRIMARY",
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (m *manager) fetchMySQLForeignKeys(ctx context.Context, connID, dbName, tableName string) ([]ForeignKeyInfo, error) {
	query := `
        SELECT
            CONSTRAINT_NAME AS constraint_name,
            GROUP_CONCAT(COLUMN_NAME ORDER BY ORDINAL_POSITION SEPARATOR ',') AS column_names,
            REFERENCED_TABLE_SCHEMA AS referenced_schema,
            REFERENCED_TABLE_NAME AS referenced_table,
            GROUP_CONCAT(REFERENCED_COLUMN_NAME ORDER BY ORDINAL_POSITION SEPARATOR ',') AS referenced_columns
        FROM information_schema.KEY_COLUMN_USAGE
        WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
        GROUP BY CONSTRAINT_NAME, REFERENCED_TABLE_SCHEMA, REFERENCED_TABLE_NAME
        ORDER BY CONSTRAINT_NAME
    `
	result, err := m.dbService.ExecuteQuery(ctx, connID, query, dbName, tableName)
	if err != nil {
		return nil, err
	}

	foreignKeys := make([]ForeignKeyInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		fk := ForeignKeyInfo{
			ConstraintName:    dbString(row["constraint_name"]),
			Columns:           splitCommaList(dbString(row["column_names"])),
			ReferencedSchema:  dbString(row["referenced_schema"]),
			ReferencedTable:   dbString(row["referenced_table"]),
			ReferencedColumns: splitCommaList(dbString(row["referenced_columns"])),
		}
		foreignKeys = append(foreignKeys, fk)
	}
	return foreignKeys, nil
}
