package sqlite

// Schema is the embedded DDL for the recall database. It is idempotent
// (CREATE ... IF NOT EXISTS) and applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL CHECK (kind IN ('episodic', 'semantic', 'procedural')),
	text TEXT NOT NULL,
	embedding BLOB,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP,
	importance REAL NOT NULL DEFAULT 0.0,
	sentiment REAL,
	recency_bias REAL NOT NULL DEFAULT 1.0,
	tags TEXT,
	meta TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_updated_at ON memories(updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);

CREATE TABLE IF NOT EXISTS edges (
	src_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	dst_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	weight REAL NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (src_id, dst_id),
	CHECK (src_id <= dst_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_id);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_id);

CREATE TABLE IF NOT EXISTS engine_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
