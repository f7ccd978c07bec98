package store

import (
	"database/sql"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteDriverName 注册了 Unicode lower() 的 SQLite 驱动名。
const SQLiteDriverName = "sqlite3_todopro"

var registerSQLite sync.Once

// SQLiteDialector 返回使用 SQLiteDriverName 的 GORM dialector。
//
// SQLite 内置的 lower() 只转换 ASCII 字母，连接建立时用 Go 的
// strings.ToLower 覆盖它，使搜索对非 ASCII 文本同样不区分大小写。
func SQLiteDialector(dsn string) gorm.Dialector {
	registerSQLite.Do(func() {
		sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("lower", unicodeLower, true)
			},
		})
	})
	return sqlite.New(sqlite.Config{DriverName: SQLiteDriverName, DSN: dsn})
}

func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	default:
		return v
	}
}
