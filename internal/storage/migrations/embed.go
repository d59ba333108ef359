package migrations

import "embed"

// PostgresFS holds the ledger schema, applied in file name order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the candle schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
