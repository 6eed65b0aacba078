package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database.
// These run on startup to ensure tables exist.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id INTEGER NOT NULL,
    chat_id INTEGER NOT NULL,
    thread_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, chat_id, thread_id)
);

CREATE TABLE IF NOT EXISTS pay_records (
    pay_record_id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    thread_id INTEGER NOT NULL,
    from_user_id INTEGER NOT NULL,
    to_user_id INTEGER NOT NULL,
    currency TEXT NOT NULL,
    value_cents INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_groups (
    group_id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    thread_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_group_links (
    link_id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id INTEGER NOT NULL,
    pay_record_id INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES payment_groups(group_id),
    FOREIGN KEY (pay_record_id) REFERENCES pay_records(pay_record_id)
);

CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_context ON users(chat_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_pay_records_context ON pay_records(chat_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_pay_records_from ON pay_records(from_user_id);
CREATE INDEX IF NOT EXISTS idx_pay_records_to ON pay_records(to_user_id);
CREATE INDEX IF NOT EXISTS idx_payment_groups_context ON payment_groups(chat_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_group_links_group ON payment_group_links(group_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
