// Package store implements the persistent schema and caching layer:
// documents, chunks, embeddings, conversations, settings, and the
// web-page cache, backed by SQLite with sqlite-vec for vector columns.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DocumentStatus is the lifecycle stage of a Document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentError      DocumentStatus = "error"
)

// DocumentType is the supported input format of a Document.
type DocumentType string

const (
	DocumentPDF      DocumentType = "pdf"
	DocumentText     DocumentType = "txt"
	DocumentMarkdown DocumentType = "md"

	// DocumentWeb marks a temporary document created from a fetched web
	// page during a Web-RAG orchestration run (spec §4.9 step 7).
	DocumentWeb DocumentType = "web"
)

// ChunkType classifies a Chunk's source paragraph shape.
type ChunkType string

const (
	ChunkHeading   ChunkType = "heading"
	ChunkList      ChunkType = "list"
	ChunkParagraph ChunkType = "paragraph"
	ChunkMixed     ChunkType = "mixed"
)

// MessageRole identifies the author of a conversation Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Document is a row in the documents table (spec §3 Document entity).
type Document struct {
	ID           int64
	Name         string
	Type         DocumentType
	Content      string
	Size         int64
	UploadedAt   time.Time
	ProcessedAt  *time.Time
	Status       DocumentStatus
	ErrorMessage string
	Metadata     string // JSON-encoded, opaque to the store
}

// Chunk is a row in the chunks table (spec §3 Chunk entity).
type Chunk struct {
	ID          int64
	DocumentID  int64
	Content     string
	Index       int
	Tokens      int
	StartChar   *int
	EndChar     *int
	Type        ChunkType
	PrevContext string
	NextContext string
	TotalChunks int
}

// Embedding is a row in the embeddings table joined with its vector
// (spec §3 Embedding entity). Vector is rehydrated to []float32 here;
// the store never hands back raw bytes.
type Embedding struct {
	ID         int64
	ChunkID    int64
	DocumentID int64
	Vector     []float32
	Model      string
	CreatedAt  time.Time
}

// Conversation is a row in the conversations table.
type Conversation struct {
	ID        int64
	Title     string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a row in the messages table.
type Message struct {
	ID             int64
	ConversationID int64
	Role           MessageRole
	Content        string
	Timestamp      time.Time
	Model          string
	Sources        string // JSON-encoded
	Metadata       string // JSON-encoded
}

// CachedWebPage is a row in the web_pages table (spec §3 CachedWebPage entity).
type CachedWebPage struct {
	URL        string
	Title      string
	Content    string
	FetchedAt  time.Time
	TTL        time.Duration
	ExpiresAt  time.Time
	Metadata   string
}

// CachedWebEmbedding is a row in the web_embeddings table joined with its vector.
type CachedWebEmbedding struct {
	ID           int64
	URL          string
	ChunkIndex   int
	ChunkContent string
	Vector       []float32
	Model        string
	CreatedAt    time.Time
}

// Store wraps the SQLite database for all localrag persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// Open opens (or creates) a SQLite database at dbPath and initializes the
// schema including the sqlite-vec virtual tables.
func Open(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Documents ---

// CreateDocument inserts a new document in pending status and returns its id.
func (s *Store) CreateDocument(ctx context.Context, d Document) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (name, type, content, size, uploaded_at, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.Name, string(d.Type), d.Content, d.Size, timeOrNow(d.UploadedAt), string(d.Status), d.Metadata)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, content, size, uploaded_at, processed_at, status, COALESCE(error_message,''), COALESCE(metadata,'')
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ListDocuments returns all documents ordered by upload time, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, content, size, uploaded_at, processed_at, status, COALESCE(error_message,''), COALESCE(metadata,'')
		FROM documents ORDER BY uploaded_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus transitions a document's status, optionally with an
// error message (cleared when status != error) and processedAt timestamp.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status DocumentStatus, errMsg string) error {
	var processedAt interface{}
	if status == DocumentReady || status == DocumentError {
		processedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, error_message = ?, processed_at = COALESCE(?, processed_at) WHERE id = ?",
		string(status), errMsg, processedAt, id)
	return err
}

// DeleteDocument removes a document and cascades to its chunks and
// embeddings in one atomic transaction (spec §3, §4.1, invariant 4).
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_embeddings WHERE embedding_id IN (
				SELECT id FROM embeddings WHERE document_id = ?
			)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
			return err
		}
		return nil
	})
}

// --- Chunks ---

// InsertChunks inserts a batch of chunks for a document in one transaction,
// preserving their Index order, and returns their assigned ids in the same
// order (spec §4.6 step 2, §5 chunk ordering guarantee).
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) ([]int64, error) {
	ids := make([]int64, len(chunks))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, content, chunk_index, tokens, start_char, end_char,
				chunk_type, prev_context, next_context, total_chunks)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range chunks {
			res, err := stmt.ExecContext(ctx, c.DocumentID, c.Content, c.Index, c.Tokens,
				c.StartChar, c.EndChar, string(c.Type), c.PrevContext, c.NextContext, c.TotalChunks)
			if err != nil {
				return err
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// GetChunksByDocument returns all chunks for a document ordered by Index.
func (s *Store) GetChunksByDocument(ctx context.Context, docID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, tokens, start_char, end_char,
			chunk_type, COALESCE(prev_context,''), COALESCE(next_context,''), total_chunks
		FROM chunks WHERE document_id = ? ORDER BY chunk_index
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var chunkType string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.Index, &c.Tokens,
			&c.StartChar, &c.EndChar, &chunkType, &c.PrevContext, &c.NextContext, &c.TotalChunks); err != nil {
			return nil, err
		}
		c.Type = ChunkType(chunkType)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk retrieves a single chunk by id, or (nil, nil) if it no
// longer exists (spec §4.5 step 4: search results join against chunks
// that may have been deleted since the embedding was indexed).
func (s *Store) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	var c Chunk
	var chunkType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, content, chunk_index, tokens, start_char, end_char,
			chunk_type, COALESCE(prev_context,''), COALESCE(next_context,''), total_chunks
		FROM chunks WHERE id = ?
	`, id).Scan(&c.ID, &c.DocumentID, &c.Content, &c.Index, &c.Tokens,
		&c.StartChar, &c.EndChar, &chunkType, &c.PrevContext, &c.NextContext, &c.TotalChunks)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Type = ChunkType(chunkType)
	return &c, nil
}

func (s *Store) CountChunksByDocument(ctx context.Context, docID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", docID).Scan(&n)
	return n, err
}

// --- Embeddings ---

// InsertEmbeddings persists a batch of embeddings (one per chunk) in a
// single transaction, annotated with model (spec §4.6 step 4), and returns
// their ids in input order.
func (s *Store) InsertEmbeddings(ctx context.Context, embs []Embedding) ([]int64, error) {
	ids := make([]int64, len(embs))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		metaStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (chunk_id, document_id, model, created_at)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer metaStmt.Close()

		vecStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO vec_embeddings (embedding_id, vector) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for i, e := range embs {
			res, err := metaStmt.ExecContext(ctx, e.ChunkID, e.DocumentID, e.Model, timeOrNow(e.CreatedAt))
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := vecStmt.ExecContext(ctx, id, serializeFloat32(e.Vector)); err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	return ids, err
}

// GetEmbeddings returns every stored embedding, optionally filtered to a
// set of document ids, with vectors rehydrated to []float32 (spec §4.5
// step 1, §9's explicit store-boundary conversion note).
func (s *Store) GetEmbeddings(ctx context.Context, documentIDs []int64) ([]Embedding, error) {
	query := `
		SELECT e.id, e.chunk_id, e.document_id, e.model, e.created_at, v.vector
		FROM embeddings e
		JOIN vec_embeddings v ON v.embedding_id = e.id
	`
	args := []interface{}{}
	if len(documentIDs) > 0 {
		query += " WHERE e.document_id IN (" + placeholders(len(documentIDs)) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY e.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var createdAt string
		var raw []byte
		if err := rows.Scan(&e.ID, &e.ChunkID, &e.DocumentID, &e.Model, &createdAt, &raw); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		e.Vector = deserializeFloat32(raw)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountEmbeddingsByDocument(ctx context.Context, docID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE document_id = ?", docID).Scan(&n)
	return n, err
}

// --- Conversations & messages ---

// CreateConversation inserts a new conversation and returns its id.
func (s *Store) CreateConversation(ctx context.Context, title, model string) (int64, error) {
	now := timeOrNow(time.Time{})
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (title, model, created_at, updated_at) VALUES (?, ?, ?, ?)",
		title, model, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	var model sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, model, created_at, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&c.ID, &c.Title, &model, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Model = model.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ListConversationsSorted returns conversations newest-updatedAt first
// (spec §4.12 getConversationsSorted).
func (s *Store) ListConversationsSorted(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, model, created_at, updated_at FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt string
		var model sql.NullString
		if err := rows.Scan(&c.ID, &c.Title, &model, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.Model = model.String
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// TouchConversation bumps updatedAt to now; updatedAt is monotone
// non-decreasing per conversation (spec §3).
func (s *Store) TouchConversation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ? AND updated_at <= ?",
		timeOrNow(time.Time{}), id, timeOrNow(time.Time{}))
	return err
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		return err
	})
}

// AddMessage appends a message with a fresh id and the current timestamp,
// and bumps the conversation's updatedAt in the same transaction (spec
// §4.12 addMessage).
func (s *Store) AddMessage(ctx context.Context, m Message) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := timeOrNow(time.Time{})
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, role, content, timestamp, model, sources, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, m.ConversationID, string(m.Role), m.Content, now, m.Model, m.Sources, m.Metadata)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, m.ConversationID)
		return err
	})
	return id, err
}

// GetMessages returns a conversation's messages in append order.
func (s *Store) GetMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, timestamp, COALESCE(model,''), COALESCE(sources,''), COALESCE(metadata,'')
		FROM messages WHERE conversation_id = ? ORDER BY id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role, ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &ts, &m.Model, &m.Sources, &m.Metadata); err != nil {
			return nil, err
		}
		m.Role = MessageRole(role)
		m.Timestamp = parseTime(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Web-page cache ---

// CacheWebPage writes or overwrites a cached page with expiresAt =
// fetchedAt + ttl (spec §4.11 cacheWebPage).
func (s *Store) CacheWebPage(ctx context.Context, p CachedWebPage) error {
	fetchedAt := p.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	expiresAt := fetchedAt.Add(p.TTL)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO web_pages (url, title, content, fetched_at, ttl_seconds, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title, content = excluded.content,
			fetched_at = excluded.fetched_at, ttl_seconds = excluded.ttl_seconds,
			expires_at = excluded.expires_at, metadata = excluded.metadata
	`, p.URL, p.Title, p.Content, fetchedAt.Format(time.RFC3339), int64(p.TTL.Seconds()),
		expiresAt.Format(time.RFC3339), p.Metadata)
	return err
}

// GetCachedWebPage returns the cached page iff it has not expired,
// deleting it lazily if it has (spec §4.11 getCachedWebPage).
func (s *Store) GetCachedWebPage(ctx context.Context, url string) (*CachedWebPage, error) {
	var p CachedWebPage
	var fetchedAt, expiresAt string
	var ttlSeconds int64
	var title, metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT url, title, content, fetched_at, ttl_seconds, expires_at, metadata
		FROM web_pages WHERE url = ?
	`, url).Scan(&p.URL, &title, &p.Content, &fetchedAt, &ttlSeconds, &expiresAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Title = title.String
	p.Metadata = metadata.String
	p.FetchedAt = parseTime(fetchedAt)
	p.TTL = time.Duration(ttlSeconds) * time.Second
	p.ExpiresAt = parseTime(expiresAt)

	if !time.Now().UTC().Before(p.ExpiresAt) {
		_ = s.DeleteCachedWebPage(ctx, url)
		return nil, nil
	}
	return &p, nil
}

// DeleteCachedWebPage cascades to web_embeddings via the url index, in one
// atomic transaction (spec §4.11 deleteCachedWebPage).
func (s *Store) DeleteCachedWebPage(ctx context.Context, url string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_web_embeddings WHERE embedding_id IN (
				SELECT id FROM web_embeddings WHERE url = ?
			)`, url); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM web_embeddings WHERE url = ?", url); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM web_pages WHERE url = ?", url)
		return err
	})
}

// CleanupExpiredPages scans the expiresAt index for records at or before
// now and deletes them, cascading (spec §4.11 cleanupExpiredPages).
func (s *Store) CleanupExpiredPages(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url FROM web_pages WHERE expires_at <= ?", timeOrNow(time.Time{}))
	if err != nil {
		return 0, err
	}
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return 0, err
		}
		urls = append(urls, u)
	}
	rows.Close()

	for _, u := range urls {
		if err := s.DeleteCachedWebPage(ctx, u); err != nil {
			return 0, err
		}
	}
	return len(urls), nil
}

// InsertWebEmbeddings persists embeddings for a cached page's chunks.
func (s *Store) InsertWebEmbeddings(ctx context.Context, embs []CachedWebEmbedding) ([]int64, error) {
	ids := make([]int64, len(embs))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		metaStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO web_embeddings (url, chunk_index, chunk_content, model, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(url, chunk_index) DO UPDATE SET
				chunk_content = excluded.chunk_content, model = excluded.model, created_at = excluded.created_at
		`)
		if err != nil {
			return err
		}
		defer metaStmt.Close()

		vecStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO vec_web_embeddings (embedding_id, vector) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for i, e := range embs {
			res, err := metaStmt.ExecContext(ctx, e.URL, e.ChunkIndex, e.ChunkContent, e.Model, timeOrNow(e.CreatedAt))
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if id == 0 {
				if err := tx.QueryRowContext(ctx,
					"SELECT id FROM web_embeddings WHERE url = ? AND chunk_index = ?", e.URL, e.ChunkIndex,
				).Scan(&id); err != nil {
					return err
				}
			}
			if _, err := vecStmt.ExecContext(ctx, id, serializeFloat32(e.Vector)); err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	return ids, err
}

// GetWebEmbeddings returns every stored embedding for a cached page's chunks.
func (s *Store) GetWebEmbeddings(ctx context.Context, url string) ([]CachedWebEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.url, w.chunk_index, w.chunk_content, w.model, w.created_at, v.vector
		FROM web_embeddings w
		JOIN vec_web_embeddings v ON v.embedding_id = w.id
		WHERE w.url = ?
		ORDER BY w.chunk_index
	`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CachedWebEmbedding
	for rows.Next() {
		var e CachedWebEmbedding
		var createdAt string
		var raw []byte
		if err := rows.Scan(&e.ID, &e.URL, &e.ChunkIndex, &e.ChunkContent, &e.Model, &createdAt, &raw); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		e.Vector = deserializeFloat32(raw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// --- helpers ---

func timeOrNow(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func placeholders(n int) string {
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec / raw BLOB storage.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 is the inverse of serializeFloat32.
func deserializeFloat32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row *sql.Row) (*Document, error) {
	return scanDocumentScanner(row)
}

func scanDocumentRows(rows *sql.Rows) (*Document, error) {
	return scanDocumentScanner(rows)
}

func scanDocumentScanner(row rowScanner) (*Document, error) {
	var d Document
	var typ, status string
	var processedAt sql.NullString
	var uploadedAt string
	if err := row.Scan(&d.ID, &d.Name, &typ, &d.Content, &d.Size, &uploadedAt,
		&processedAt, &status, &d.ErrorMessage, &d.Metadata); err != nil {
		return nil, err
	}
	d.Type = DocumentType(typ)
	d.Status = DocumentStatus(status)
	d.UploadedAt = parseTime(uploadedAt)
	if processedAt.Valid && processedAt.String != "" {
		t := parseTime(processedAt.String)
		d.ProcessedAt = &t
	}
	return &d, nil
}
