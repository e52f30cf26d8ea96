package registry

// SchemaSQL creates the registry tables.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS boards (
	serial_number TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	vid INTEGER NOT NULL DEFAULT 0,
	pid INTEGER NOT NULL DEFAULT 0,
	manufacturer TEXT NOT NULL DEFAULT '',
	product TEXT NOT NULL DEFAULT '',
	debug_port TEXT NOT NULL DEFAULT '',
	uart_port TEXT NOT NULL DEFAULT '',
	flash_counter INTEGER NOT NULL DEFAULT 0,
	defective INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS instruments (
	serial_number TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
