package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// connectionNamespace 是用于数据库连接 ID 的自定义 UUID 命名空间。
var connectionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bi.cc.com.connection"))

// ConnectionStringToUUID 根据连接字符串和数据库类型生成确定性的连接 ID。
// 相同的连接（忽略密码）总是得到相同的 ID，便于幂等注册。
// dbType 为 "postgres" 或 "mysql"。
func ConnectionStringToUUID(connectionString, dbType string) (string, error) {
	var canonicalString string

	switch dbType {
	case "mysql":
		// MySQL DSN 格式: user:pass@tcp(host:port)/dbname?params
		canonical, err := canonicalMySQLDSN(connectionString)
		if err != nil {
			return "", err
		}
		canonicalString = canonical
	default:
		// PostgreSQL URL 格式
		canonical, err := canonicalPostgresURL(connectionString)
		if err != nil {
			return "", err
		}
		canonicalString = canonical
	}

	// 使用自定义命名空间生成版本 5 UUID (基于 SHA-1)
	resultUUID := uuid.NewSHA1(connectionNamespace, []byte(dbType+"://"+canonicalString))
	return resultUUID.String(), nil
}

// canonicalPostgresURL 提取 PostgreSQL URL 的关键部分（排除密码）。
func canonicalPostgresURL(connectionString string) (string, error) {
	// 确保有协议前缀以便解析
	if !strings.HasPrefix(connectionString, "postgresql://") && !strings.HasPrefix(connectionString, "postgres://") {
		connectionString = "postgresql://" + connectionString
	}

	parsed, err := url.Parse(connectionString)
	if err != nil {
		return "", fmt.Errorf("解析连接字符串失败: %w", err)
	}

	// 提取关键部分：用户（如果存在）、主机、端口、数据库路径
	user := ""
	if parsed.User != nil {
		user = parsed.User.Username() // 生成 ID 时排除密码
	}
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "5432" // PostgreSQL 默认端口
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		dbName = "postgres" // 未指定时的默认数据库名
	}

	// 示例: "user@host:port/dbname"
	return fmt.Sprintf("%s@%s:%s/%s", user, host, port, dbName), nil
}

// canonicalMySQLDSN 提取 MySQL DSN 的关键部分（排除密码）。
// 不依赖驱动的 ParseDSN，仅做字符串级拆解，避免对参数顺序敏感。
func canonicalMySQLDSN(dsn string) (string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return "", fmt.Errorf("连接字符串不能为空")
	}

	// 去掉查询参数，参数不参与身份识别
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	user := ""
	rest := trimmed
	if at := strings.LastIndex(trimmed, "@"); at >= 0 {
		cred := trimmed[:at]
		rest = trimmed[at+1:]
		// 凭证部分: user 或 user:password
		if colon := strings.Index(cred, ":"); colon >= 0 {
			user = cred[:colon]
		} else {
			user = cred
		}
	}

	// rest 形如 tcp(host:port)/dbname 或 /dbname
	hostPort := "127.0.0.1:3306"
	dbName := ""
	if open := strings.Index(rest, "("); open >= 0 {
		if close := strings.Index(rest, ")"); close > open {
			hostPort = rest[open+1 : close]
			rest = rest[close+1:]
		}
	}
	if slash := strings.Index(rest, "/"); slash >= 0 {
		dbName = rest[slash+1:]
	}

	return fmt.Sprintf("%s@%s/%s", user, hostPort, dbName), nil
}
