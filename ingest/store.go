package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/util"
	"github.com/xor-shift/rngserver/util/rng"
	"strconv"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type Store interface {
	// CreateSession persists a new session and assigns record.ID.
	CreateSession(ctx context.Context, record *SessionRecord) error
	UpdateSession(ctx context.Context, record *SessionRecord) error
	LoadSession(ctx context.Context, id uint64) (*SessionRecord, error)
}

var schema = []string{
	"CREATE TABLE IF NOT EXISTS sessions (" +
		"session_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY" +
		", variant VARCHAR(16) NOT NULL" +
		", seed CHAR(16) NOT NULL" +
		", steps BIGINT UNSIGNED NOT NULL" +
		", draws BIGINT UNSIGNED NOT NULL" +
		", prng CHAR(64) NOT NULL" +
		", verified BIGINT UNSIGNED NOT NULL" +
		", verifier_prng CHAR(64) NOT NULL" +
		", dropped BIGINT UNSIGNED NOT NULL" +
		", insert_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP" +
		")",
	"CREATE TABLE IF NOT EXISTS draws (" +
		"session_id BIGINT UNSIGNED NOT NULL" +
		", draw_order BIGINT UNSIGNED NOT NULL" +
		", first_step BIGINT UNSIGNED NOT NULL" +
		", dist VARCHAR(16) NOT NULL" +
		", value_bits BIGINT UNSIGNED NULL" +
		", value_int BIGINT NULL" +
		", value_float DOUBLE NULL" +
		", insert_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP" +
		", PRIMARY KEY (session_id, draw_order)" +
		")",
}

const (
	insertSessionQuery = "INSERT INTO sessions (variant, seed, steps, draws, prng, verified, verifier_prng, dropped, insert_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	updateSessionQuery = "UPDATE sessions SET steps=?, draws=?, prng=?, verified=?, verifier_prng=?, dropped=? WHERE session_id=?"
	selectSessionQuery = "SELECT session_id, variant, seed, steps, draws, prng, verified, verifier_prng, dropped, insert_time FROM sessions WHERE session_id=?"
	insertDrawQuery    = "INSERT INTO draws (session_id, draw_order, first_step, dist, value_bits, value_int, value_float) VALUES (?, ?, ?, ?, ?, ?, ?)"
	selectDrawsQuery   = "SELECT draw_order, first_step, dist, value_bits, value_int, value_float, insert_time FROM draws WHERE session_id=? ORDER BY draw_order"
)

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (store *MySQLStore) Migrate(ctx context.Context) error {
	for _, statement := range schema {
		if _, err := store.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}

	return nil
}

func (store *MySQLStore) CreateSession(ctx context.Context, record *SessionRecord) error {
	res, err := store.db.ExecContext(ctx, insertSessionQuery,
		record.Variant.String(), util.ArrayToString([]uint64{record.Seed}),
		record.Steps, record.Draws, util.ArrayToString(record.State[:]),
		record.Verified, util.ArrayToString(record.VerifierState[:]), record.Dropped,
		record.CreatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	record.ID = uint64(id)

	return nil
}

func (store *MySQLStore) UpdateSession(ctx context.Context, record *SessionRecord) error {
	res, err := store.db.ExecContext(ctx, updateSessionQuery,
		record.Steps, record.Draws, util.ArrayToString(record.State[:]),
		record.Verified, util.ArrayToString(record.VerifierState[:]), record.Dropped,
		record.ID)
	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// MySQL reports unchanged rows as unaffected, tell the two apart
		if _, err := store.LoadSession(ctx, record.ID); err != nil {
			return err
		}
	}

	return nil
}

func (store *MySQLStore) LoadSession(ctx context.Context, id uint64) (*SessionRecord, error) {
	var record SessionRecord
	var variant, seed, state, verifierState string

	err := store.db.QueryRowContext(ctx, selectSessionQuery, id).Scan(
		&record.ID, &variant, &seed, &record.Steps, &record.Draws, &state,
		&record.Verified, &verifierState, &record.Dropped, &record.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	if record.Variant, err = rng.ParseVariant(variant); err != nil {
		return nil, err
	}

	seedArr := [1]uint64{}
	if err = util.ParseHexArray(seed, seedArr[:]); err != nil {
		return nil, fmt.Errorf("session %d seed: %w", id, err)
	}
	record.Seed = seedArr[0]

	if err = util.ParseHexArray(state, record.State[:]); err != nil {
		return nil, fmt.Errorf("session %d state: %w", id, err)
	}

	if err = util.ParseHexArray(verifierState, record.VerifierState[:]); err != nil {
		return nil, fmt.Errorf("session %d verifier state: %w", id, err)
	}

	return &record, nil
}

// InsertDrawBatch writes every value of batch as its own row, in one transaction.
func (store *MySQLStore) InsertDrawBatch(ctx context.Context, batch common.DrawBatch) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertDrawQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	order := batch.FirstIndex
	insert := func(bits, integer, float interface{}) error {
		_, err := stmt.ExecContext(ctx, batch.SessionID, order, batch.FirstStep, string(batch.Distribution), bits, integer, float)
		order++
		return err
	}

	for _, v := range batch.Bits {
		if err = insert(v, nil, nil); err != nil {
			return err
		}
	}

	for _, v := range batch.Ints {
		if err = insert(nil, v, nil); err != nil {
			return err
		}
	}

	for _, v := range batch.Floats {
		if err = insert(nil, nil, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type DrawRow struct {
	Order        uint64
	FirstStep    uint64
	Distribution common.Distribution
	InsertTime   time.Time

	Bits  uint64
	Int   int64
	Float float64
}

// Value renders the column the row's distribution fills.
func (row *DrawRow) Value() string {
	switch row.Distribution.Kind() {
	case common.KindBits:
		return strconv.FormatUint(row.Bits, 10)
	case common.KindInt:
		return strconv.FormatInt(row.Int, 10)
	default:
		return strconv.FormatFloat(row.Float, 'g', -1, 64)
	}
}

func (store *MySQLStore) LoadDraws(ctx context.Context, sessionID uint64) ([]DrawRow, error) {
	sqlRows, err := store.db.QueryContext(ctx, selectDrawsQuery, sessionID)
	if err != nil {
		return nil, err
	}
	defer sqlRows.Close()

	var rows []DrawRow
	for i := 0; sqlRows.Next(); i++ {
		var row DrawRow
		var bits sql.NullString
		var integer sql.NullInt64
		var float sql.NullFloat64

		if err = sqlRows.Scan(&row.Order, &row.FirstStep, &row.Distribution, &bits, &integer, &float, &row.InsertTime); err != nil {
			return nil, fmt.Errorf("error while reading row %d of session %d: %w", i, sessionID, err)
		}

		if bits.Valid {
			if row.Bits, err = strconv.ParseUint(bits.String, 10, 64); err != nil {
				return nil, fmt.Errorf("error while parsing bits of row %d of session %d: %w", i, sessionID, err)
			}
		}

		row.Int = integer.Int64
		row.Float = float.Float64

		rows = append(rows, row)
	}

	return rows, sqlRows.Err()
}

// MemoryStore keeps sessions in process. Meant for tests and for running the
// producer without a database.
type MemoryStore struct {
	mu       sync.Mutex
	lastID   uint64
	sessions map[uint64]SessionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[uint64]SessionRecord{}}
}

func (store *MemoryStore) CreateSession(_ context.Context, record *SessionRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.lastID++
	record.ID = store.lastID
	store.sessions[record.ID] = *record

	return nil
}

func (store *MemoryStore) UpdateSession(_ context.Context, record *SessionRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.sessions[record.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, record.ID)
	}

	store.sessions[record.ID] = *record

	return nil
}

func (store *MemoryStore) LoadSession(_ context.Context, id uint64) (*SessionRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}

	return &record, nil
}
