package graphstore

import "fmt"

// sqliteTables stores nodes and edges as rows with JSON properties
var sqliteTables = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS edges (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		from_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		to_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		properties TEXT NOT NULL DEFAULT '{}'
	)`,
}

var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id, type)`,
}

var sqlitePragmas = []string{
	`PRAGMA journal_mode = WAL`,
	`PRAGMA foreign_keys = ON`,
	`PRAGMA busy_timeout = 5000`,
	`PRAGMA synchronous = NORMAL`,
}

// uniqueIndexes returns one partial expression index per unique property
func uniqueIndexes(s Schema) []string {
	var stmts []string
	for _, ns := range s.Nodes {
		for _, key := range ns.Unique {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_%s_%s ON nodes(json_extract(properties, '$.%s')) WHERE label = '%s'`,
				ns.Label, key, key, ns.Label))
		}
	}
	return stmts
}

func allSchemaStatements(s Schema) []string {
	stmts := make([]string, 0, len(sqliteTables)+len(sqliteIndexes))
	stmts = append(stmts, sqliteTables...)
	stmts = append(stmts, sqliteIndexes...)
	stmts = append(stmts, uniqueIndexes(s)...)
	return stmts
}
