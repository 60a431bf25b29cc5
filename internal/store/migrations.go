package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create chat sessions and messages",
		SQL: `
			CREATE TABLE chat_sessions (
				id            TEXT PRIMARY KEY,
				client_name   TEXT NOT NULL,
				client_email  TEXT NOT NULL DEFAULT '',
				client_phone  TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL,
				updated_at    TEXT NOT NULL
			);

			-- session_id holds the temp session id while temp = 1
			CREATE TABLE chat_messages (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id    TEXT NOT NULL,
				temp          INTEGER NOT NULL DEFAULT 0,
				sender_type   TEXT NOT NULL,
				sender_name   TEXT NOT NULL DEFAULT '',
				content       TEXT NOT NULL,
				message_type  TEXT NOT NULL DEFAULT 'text',
				image_url     TEXT NOT NULL DEFAULT '',
				image_name    TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL
			);

			CREATE INDEX idx_chat_messages_session ON chat_messages (session_id, temp, id);
		`,
	},
	{
		Version: 2,
		Name:    "full-text search over chat messages",
		SQL: `
			CREATE VIRTUAL TABLE chat_messages_fts USING fts5(
				content,
				content='chat_messages',
				content_rowid='id'
			);

			CREATE TRIGGER chat_messages_ai AFTER INSERT ON chat_messages BEGIN
				INSERT INTO chat_messages_fts(rowid, content) VALUES (new.id, new.content);
			END;

			CREATE TRIGGER chat_messages_ad AFTER DELETE ON chat_messages BEGIN
				INSERT INTO chat_messages_fts(chat_messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
			END;

			CREATE TRIGGER chat_messages_au AFTER UPDATE OF content ON chat_messages BEGIN
				INSERT INTO chat_messages_fts(chat_messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
				INSERT INTO chat_messages_fts(rowid, content) VALUES (new.id, new.content);
			END;
		`,
	},
	{
		Version: 3,
		Name:    "create widget identity",
		SQL: `
			CREATE TABLE widget_identity (
				id               INTEGER PRIMARY KEY CHECK (id = 1),
				temp_session_id  TEXT NOT NULL,
				session_id       TEXT NOT NULL DEFAULT '',
				client_name      TEXT NOT NULL DEFAULT '',
				client_email     TEXT NOT NULL DEFAULT '',
				client_phone     TEXT NOT NULL DEFAULT '',
				updated_at       TEXT NOT NULL
			);
		`,
	},
}
