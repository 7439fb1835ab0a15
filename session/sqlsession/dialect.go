package sqlsession

import (
	"strconv"
	"strings"
	"sync"
)

// Dialect 屏蔽不同数据库在标识符引用、占位符和 UPSERT 语法上的差异
type Dialect interface {
	// Name 返回方言名称，同时也是配置中使用的名称
	Name() string
	// DriverName 返回 database/sql 注册的驱动名
	DriverName() string
	// Quote 引用表名、列名等标识符
	Quote(name string) string
	// Placeholder 生成第 index 个参数的占位符，从 1 开始
	Placeholder(index int) string
	// Upsert 生成按主键插入或更新的语句，参数顺序为 id, expires, data
	Upsert(s Schema) string
	// CreateTable 生成建表语句
	CreateTable(s Schema) []string
}

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// RegisterDialect 注册一个方言，同名会覆盖
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Name()] = d
}

// GetDialect 按名称查找方言
func GetDialect(name string) (Dialect, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

func init() {
	RegisterDialect(MySQL{})
	RegisterDialect(Postgres{})
}

type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) Quote(name string) string {
	return "`" + name + "`"
}

func (MySQL) Placeholder(int) string {
	return "?"
}

func (m MySQL) Upsert(s Schema) string {
	var sb strings.Builder
	writeInsert(&sb, m, s)
	sb.WriteString(" ON DUPLICATE KEY UPDATE ")
	sb.WriteString(m.Quote(s.ExpiresColumn))
	sb.WriteString(" = VALUES(")
	sb.WriteString(m.Quote(s.ExpiresColumn))
	sb.WriteString("), ")
	sb.WriteString(m.Quote(s.DataColumn))
	sb.WriteString(" = VALUES(")
	sb.WriteString(m.Quote(s.DataColumn))
	sb.WriteString(")")
	return sb.String()
}

// CreateTable 沿用 express-mysql-session 的表结构，过期时间使用 unix 毫秒
func (m MySQL) CreateTable(s Schema) []string {
	return []string{
		"CREATE TABLE IF NOT EXISTS " + m.Quote(s.Table) + " (" +
			m.Quote(s.IDColumn) + " VARCHAR(128) COLLATE utf8mb4_bin NOT NULL, " +
			m.Quote(s.ExpiresColumn) + " BIGINT UNSIGNED NOT NULL, " +
			m.Quote(s.DataColumn) + " MEDIUMTEXT COLLATE utf8mb4_bin, " +
			"PRIMARY KEY (" + m.Quote(s.IDColumn) + "), " +
			"KEY " + m.Quote(s.Table+"_"+s.ExpiresColumn+"_idx") + " (" + m.Quote(s.ExpiresColumn) + ")" +
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	}
}

type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "pgx" }

func (Postgres) Quote(name string) string {
	return `"` + name + `"`
}

func (Postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

func (p Postgres) Upsert(s Schema) string {
	var sb strings.Builder
	writeInsert(&sb, p, s)
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(p.Quote(s.IDColumn))
	sb.WriteString(") DO UPDATE SET ")
	sb.WriteString(p.Quote(s.ExpiresColumn))
	sb.WriteString(" = EXCLUDED.")
	sb.WriteString(p.Quote(s.ExpiresColumn))
	sb.WriteString(", ")
	sb.WriteString(p.Quote(s.DataColumn))
	sb.WriteString(" = EXCLUDED.")
	sb.WriteString(p.Quote(s.DataColumn))
	return sb.String()
}

func (p Postgres) CreateTable(s Schema) []string {
	return []string{
		"CREATE TABLE IF NOT EXISTS " + p.Quote(s.Table) + " (" +
			p.Quote(s.IDColumn) + " VARCHAR(128) PRIMARY KEY, " +
			p.Quote(s.ExpiresColumn) + " BIGINT NOT NULL, " +
			p.Quote(s.DataColumn) + " TEXT NOT NULL)",
		"CREATE INDEX IF NOT EXISTS " + p.Quote(s.Table+"_"+s.ExpiresColumn+"_idx") +
			" ON " + p.Quote(s.Table) + " (" + p.Quote(s.ExpiresColumn) + ")",
	}
}

func writeInsert(sb *strings.Builder, d Dialect, s Schema) {
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.Quote(s.Table))
	sb.WriteString(" (")
	sb.WriteString(d.Quote(s.IDColumn))
	sb.WriteString(", ")
	sb.WriteString(d.Quote(s.ExpiresColumn))
	sb.WriteString(", ")
	sb.WriteString(d.Quote(s.DataColumn))
	sb.WriteString(") VALUES (")
	for i := 1; i <= 3; i++ {
		if i > 1 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Placeholder(i))
	}
	sb.WriteString(")")
}
