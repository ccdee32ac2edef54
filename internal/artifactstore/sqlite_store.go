package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/telemetry"
	"github.com/localrivet/hybridrec/internal/vector"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	idx INTEGER PRIMARY KEY,
	item_id TEXT NOT NULL,
	title TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS interactions (
	user TEXT NOT NULL,
	item INTEGER NOT NULL,
	interaction REAL NOT NULL,
	PRIMARY KEY (user, item)
);
CREATE TABLE IF NOT EXISTS embeddings (
	space TEXT NOT NULL,
	idx INTEGER NOT NULL,
	dim INTEGER NOT NULL,
	vector BLOB NOT NULL,
	PRIMARY KEY (space, idx)
);`

// SQLiteStore is an implementation of Store backed by a single SQLite
// connection. All access is serialised by a mutex.
type SQLiteStore struct {
	conn    *sqlite.Conn
	dbPath  string
	metrics *telemetry.MetricsCollector
	mu      sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore instance. metrics may be nil.
func NewSQLiteStore(metrics *telemetry.MetricsCollector) *SQLiteStore {
	return &SQLiteStore{metrics: metrics}
}

// Initialize opens the database at dbPath and creates the schema.
func (s *SQLiteStore) Initialize(dbPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dbPath = dbPath

	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_WAL)
	if err != nil {
		return errortypes.DatabaseError(err, "failed to open SQLite database").WithField("path", dbPath)
	}

	if err := sqlitex.ExecScript(conn, schemaSQL); err != nil {
		conn.Close()
		return errortypes.DatabaseError(err, "failed to create schema")
	}

	s.conn = conn
	return nil
}

// Close closes the store and releases any resources.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// PutItems replaces the item catalog.
func (s *SQLiteStore) PutItems(ctx context.Context, items []catalog.Item) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}
	defer sqlitex.Save(s.conn)(&err)
	return s.putItems(items)
}

// PutInteractions replaces the interaction table, summing duplicate pairs.
func (s *SQLiteStore) PutInteractions(ctx context.Context, rows []catalog.Interaction) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}
	defer sqlitex.Save(s.conn)(&err)
	return s.putInteractions(rows)
}

// PutEmbeddings replaces the matrix stored under space.
func (s *SQLiteStore) PutEmbeddings(ctx context.Context, space string, m *vector.Matrix) (err error) {
	if err := checkMatrix(space, m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}
	defer sqlitex.Save(s.conn)(&err)
	return s.putEmbeddings(space, m)
}

// PutSnapshot replaces all four artifacts in one savepoint. On failure the
// previous contents are kept.
func (s *SQLiteStore) PutSnapshot(ctx context.Context, snap Snapshot) (err error) {
	if err := checkMatrix(artifacts.SpaceSemantic, snap.Semantic); err != nil {
		return err
	}
	if err := checkMatrix(artifacts.SpaceCollaborative, snap.Collaborative); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}
	defer sqlitex.Save(s.conn)(&err)

	if err := s.putItems(snap.Items); err != nil {
		return err
	}
	if err := s.putInteractions(snap.Interactions); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.putEmbeddings(artifacts.SpaceSemantic, snap.Semantic); err != nil {
		return err
	}
	return s.putEmbeddings(artifacts.SpaceCollaborative, snap.Collaborative)
}

func checkMatrix(space string, m *vector.Matrix) error {
	if space == "" {
		return errortypes.InvalidInputError(errors.New("space name is empty"), "invalid embeddings")
	}
	if m.Empty() {
		return errortypes.InvalidInputError(errors.New("matrix is empty"), "invalid embeddings").WithField("space", space)
	}
	return nil
}

func (s *SQLiteStore) putItems(items []catalog.Item) error {
	if err := s.exec("DELETE FROM items;"); err != nil {
		return err
	}

	stmt, err := s.conn.Prepare("INSERT INTO items (idx, item_id, title) VALUES (?, ?, ?);")
	if err != nil {
		return errortypes.DatabaseError(err, "failed to prepare insert statement")
	}
	for _, item := range items {
		stmt.BindInt64(1, int64(item.Index))
		stmt.BindText(2, item.ID)
		stmt.BindText(3, item.Title)
		if _, err := stmt.Step(); err != nil {
			stmt.Reset()
			return errortypes.DatabaseError(err, "failed to insert item").WithField("index", item.Index)
		}
		stmt.Reset()
	}

	s.metrics.IncrementCounter(telemetry.MetricStoreWrites, int64(len(items)))
	return nil
}

func (s *SQLiteStore) putInteractions(rows []catalog.Interaction) error {
	if err := s.exec("DELETE FROM interactions;"); err != nil {
		return err
	}

	stmt, err := s.conn.Prepare(`
	INSERT INTO interactions (user, item, interaction) VALUES (?, ?, ?)
	ON CONFLICT (user, item) DO UPDATE SET interaction = interaction + excluded.interaction;`)
	if err != nil {
		return errortypes.DatabaseError(err, "failed to prepare insert statement")
	}
	for _, row := range rows {
		stmt.BindText(1, row.User)
		stmt.BindInt64(2, int64(row.Item))
		stmt.BindFloat(3, row.Count)
		if _, err := stmt.Step(); err != nil {
			stmt.Reset()
			return errortypes.DatabaseError(err, "failed to insert interaction").WithField("user", row.User)
		}
		stmt.Reset()
	}

	s.metrics.IncrementCounter(telemetry.MetricStoreWrites, int64(len(rows)))
	return nil
}

func (s *SQLiteStore) putEmbeddings(space string, m *vector.Matrix) error {
	del, err := s.conn.Prepare("DELETE FROM embeddings WHERE space = ?;")
	if err != nil {
		return errortypes.DatabaseError(err, "failed to prepare delete statement")
	}
	del.BindText(1, space)
	_, err = del.Step()
	del.Reset()
	if err != nil {
		return errortypes.DatabaseError(err, "failed to clear embeddings").WithField("space", space)
	}

	stmt, err := s.conn.Prepare("INSERT INTO embeddings (space, idx, dim, vector) VALUES (?, ?, ?, ?);")
	if err != nil {
		return errortypes.DatabaseError(err, "failed to prepare insert statement")
	}
	for i := 0; i < m.Rows(); i++ {
		blob, err := vector.Float32SliceToBytes(m.Row(i))
		if err != nil {
			return errortypes.InternalError(err, "failed to encode embedding")
		}
		stmt.BindText(1, space)
		stmt.BindInt64(2, int64(i))
		stmt.BindInt64(3, int64(m.Dim()))
		stmt.BindBytes(4, blob)
		if _, err := stmt.Step(); err != nil {
			stmt.Reset()
			return errortypes.DatabaseError(err, "failed to insert embedding").WithField("space", space)
		}
		stmt.Reset()
	}

	s.metrics.IncrementCounter(telemetry.MetricStoreWrites, int64(m.Rows()))
	return nil
}

// Load reads every artifact and returns a validated bundle. Absent or
// inconsistent data is reported as a missing artifact.
func (s *SQLiteStore) Load(ctx context.Context) (*artifacts.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer s.metrics.Since(telemetry.MetricStoreLoadLatency, start)

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	cat, err := s.loadCatalog()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interactions, err := s.loadInteractions()
	if err != nil {
		return nil, err
	}

	bundle := &artifacts.Bundle{Catalog: cat, Interactions: interactions}
	for _, space := range []string{artifacts.SpaceSemantic, artifacts.SpaceCollaborative} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := s.loadMatrix(space)
		if err != nil {
			return nil, err
		}
		if space == artifacts.SpaceSemantic {
			bundle.Semantic = m
		} else {
			bundle.Collaborative = m
		}
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Stats reports row counts per table and the shape of each stored matrix.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Spaces: make(map[string]SpaceStats)}
	if err := s.ready(ctx); err != nil {
		return stats, err
	}

	var err error
	if stats.Items, err = s.count("SELECT COUNT(*) FROM items;"); err != nil {
		return stats, err
	}
	if stats.Interactions, err = s.count("SELECT COUNT(*) FROM interactions;"); err != nil {
		return stats, err
	}

	err = sqlitex.Exec(s.conn, "SELECT space, COUNT(*), MAX(dim) FROM embeddings GROUP BY space;",
		func(stmt *sqlite.Stmt) error {
			stats.Spaces[stmt.ColumnText(0)] = SpaceStats{
				Rows: int(stmt.ColumnInt64(1)),
				Dim:  int(stmt.ColumnInt64(2)),
			}
			return nil
		})
	if err != nil {
		return stats, errortypes.DatabaseError(err, "failed to read embedding stats")
	}
	return stats, nil
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if s.conn == nil {
		return errortypes.DatabaseError(errors.New("store is not initialized"), "store unavailable")
	}
	return ctx.Err()
}

func (s *SQLiteStore) exec(query string) error {
	if err := sqlitex.Exec(s.conn, query, nil); err != nil {
		return errortypes.DatabaseError(err, "failed to execute statement")
	}
	return nil
}

func (s *SQLiteStore) count(query string) (int, error) {
	var n int64
	err := sqlitex.Exec(s.conn, query, func(stmt *sqlite.Stmt) error {
		n = stmt.ColumnInt64(0)
		return nil
	})
	if err != nil {
		return 0, errortypes.DatabaseError(err, "failed to count rows")
	}
	return int(n), nil
}

func (s *SQLiteStore) loadCatalog() (*catalog.Catalog, error) {
	stmt, err := s.conn.Prepare("SELECT idx, item_id, title FROM items ORDER BY idx;")
	if err != nil {
		return nil, errortypes.DatabaseError(err, "failed to prepare select statement")
	}
	defer stmt.Reset()

	var items []catalog.Item
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, errortypes.DatabaseError(err, "failed to read items")
		}
		if !hasRow {
			break
		}
		items = append(items, catalog.Item{
			Index: int(stmt.ColumnInt64(0)),
			ID:    stmt.ColumnText(1),
			Title: stmt.ColumnText(2),
		})
	}

	if len(items) == 0 {
		return nil, errortypes.MissingArtifactError(errors.New("items table is empty"), "item catalog not loaded")
	}
	cat, err := catalog.New(items)
	if err != nil {
		return nil, errortypes.MissingArtifactError(err, "item catalog is inconsistent")
	}
	return cat, nil
}

func (s *SQLiteStore) loadInteractions() (*catalog.InteractionSet, error) {
	var items []int
	err := sqlitex.Exec(s.conn,
		"SELECT item FROM interactions GROUP BY item HAVING SUM(interaction) > 0 ORDER BY item;",
		func(stmt *sqlite.Stmt) error {
			items = append(items, int(stmt.ColumnInt64(0)))
			return nil
		})
	if err != nil {
		return nil, errortypes.DatabaseError(err, "failed to read interactions")
	}

	total, err := s.count("SELECT COUNT(*) FROM interactions;")
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errortypes.MissingArtifactError(errors.New("interactions table is empty"), "interaction set not loaded")
	}
	return catalog.NewInteractionSet(items...), nil
}

func (s *SQLiteStore) loadMatrix(space string) (*vector.Matrix, error) {
	stmt, err := s.conn.Prepare("SELECT idx, dim, vector FROM embeddings WHERE space = ? ORDER BY idx;")
	if err != nil {
		return nil, errortypes.DatabaseError(err, "failed to prepare select statement")
	}
	defer stmt.Reset()
	stmt.BindText(1, space)

	var data []float32
	rows, dim := 0, 0
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, errortypes.DatabaseError(err, "failed to read embeddings").WithField("space", space)
		}
		if !hasRow {
			break
		}

		idx := int(stmt.ColumnInt64(0))
		rowDim := int(stmt.ColumnInt64(1))
		if idx != rows {
			return nil, errortypes.Newf(errortypes.ErrorTypeMissingArtifact, "embeddings are inconsistent",
				"%s: expected row %d, found %d", space, rows, idx)
		}
		if rows == 0 {
			dim = rowDim
			data = make([]float32, 0, 64*dim)
		}

		blob := make([]byte, stmt.ColumnLen(2))
		stmt.ColumnBytes(2, blob)
		vec, err := vector.BytesToFloat32Slice(blob)
		if err != nil {
			return nil, errortypes.MissingArtifactError(err, "embeddings are corrupt").WithField("space", space).WithField("row", idx)
		}
		if len(vec) != dim || rowDim != dim {
			return nil, errortypes.MissingArtifactError(
				errortypes.DimensionMismatchError(dim, len(vec), fmt.Sprintf("%s row %d", space, idx)),
				"embeddings are inconsistent")
		}

		data = append(data, vec...)
		rows++
	}

	if rows == 0 {
		return nil, errortypes.Newf(errortypes.ErrorTypeMissingArtifact, "embeddings not loaded", "no %s embeddings stored", space)
	}
	m, err := vector.NewMatrix(data, rows, dim)
	if err != nil {
		return nil, errortypes.MissingArtifactError(err, "embeddings are inconsistent")
	}
	return m, nil
}
