package migrations

import "embed"

// FS はアーカイブ用のSQLiteマイグレーションです。
//
//go:embed *.sql
var FS embed.FS
