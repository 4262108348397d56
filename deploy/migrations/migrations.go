package migrations

import "embed"

// Files 暴露订单日志使用的 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
