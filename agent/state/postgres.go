package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN         string        `envconfig:"DSN" split_words:"true" required:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
}

// PostgresStore persists sessions, orders and mailboxes with bun on Postgres.
// Payloads live in jsonb columns; only the indexed fields are real columns.
type PostgresStore struct {
	db *bun.DB
}

var (
	_ SessionStore = (*pgSessions)(nil)
	_ OrderStore   = (*pgOrders)(nil)
	_ Mailbox      = (*pgMailbox)(nil)
	_ Backend      = (*PostgresStore)(nil)
)

type sessionRow struct {
	bun.BaseModel `bun:"table:relay_sessions,alias:s"`

	ID        string    `bun:"id,pk"`
	Payload   *Session  `bun:"payload,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type orderRow struct {
	bun.BaseModel `bun:"table:relay_orders,alias:o"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"session_id,notnull"`
	ContactID string    `bun:"contact_id,notnull"`
	Open      bool      `bun:"open,notnull"`
	Payload   *Order    `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type mailboxRow struct {
	bun.BaseModel `bun:"table:relay_mailbox,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	SessionID string    `bun:"session_id,notnull"`
	Text      string    `bun:"text,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (p *PostgresStore) initSchema(ctx context.Context) error {
	models := []any{(*sessionRow)(nil), (*orderRow)(nil), (*mailboxRow)(nil)}
	for _, model := range models {
		if _, err := p.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []*bun.CreateIndexQuery{
		p.db.NewCreateIndex().Model((*orderRow)(nil)).Index("relay_orders_open_contact_idx").
			Unique().Column("contact_id").Where("open").IfNotExists(),
		p.db.NewCreateIndex().Model((*orderRow)(nil)).Index("relay_orders_session_idx").
			Column("session_id", "created_at").IfNotExists(),
		p.db.NewCreateIndex().Model((*mailboxRow)(nil)).Index("relay_mailbox_session_idx").
			Column("session_id", "id").IfNotExists(),
	}
	for _, q := range indexes {
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) SessionStore() SessionStore { return (*pgSessions)(p) }
func (p *PostgresStore) OrderStore() OrderStore     { return (*pgOrders)(p) }
func (p *PostgresStore) Mailbox() Mailbox           { return (*pgMailbox)(p) }
func (p *PostgresStore) Close() error               { return p.db.Close() }

/* ------------------------------- sessions ------------------------------- */

type pgSessions PostgresStore

func (s *pgSessions) Load(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("s.id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	if row.Payload == nil {
		return nil, fmt.Errorf("%w: empty payload for %s", ErrStateNotFound, sessionID)
	}
	return row.Payload, nil
}

func (s *pgSessions) Save(ctx context.Context, st *Session) error {
	if st == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return ErrInvalidSession
	}
	row := &sessionRow{ID: st.SessionID, Payload: st, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *pgSessions) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exec(ctx)
	return err
}

/* -------------------------------- orders -------------------------------- */

type pgOrders PostgresStore

func newOrderRow(o *Order) *orderRow {
	return &orderRow{
		ID:        o.OrderID,
		SessionID: o.SessionID,
		ContactID: o.Restaurant.ContactID,
		Open:      o.IsOpen(),
		Payload:   o,
		CreatedAt: o.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *pgOrders) Create(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	_, err := s.db.NewInsert().Model(newOrderRow(o)).Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return ErrContactInUse
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *pgOrders) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.selectOne(ctx, "o.id = ?", orderID)
}

func (s *pgOrders) GetBySession(ctx context.Context, sessionID string) (*Order, error) {
	return s.selectOne(ctx, "o.session_id = ?", sessionID)
}

func (s *pgOrders) GetByContact(ctx context.Context, contactID string) (*Order, error) {
	return s.selectOne(ctx, "o.contact_id = ? AND o.open", contactID)
}

func (s *pgOrders) selectOne(ctx context.Context, where string, arg string) (*Order, error) {
	row := new(orderRow)
	err := s.db.NewSelect().Model(row).Where(where, arg).OrderExpr("o.created_at DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	if row.Payload == nil {
		return nil, ErrOrderNotFound
	}
	return row.Payload, nil
}

func (s *pgOrders) Update(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	row := newOrderRow(o)
	res, err := s.db.NewUpdate().Model(row).
		Column("open", "payload", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *pgOrders) Delete(ctx context.Context, orderID string) error {
	if _, err := s.db.NewDelete().Model((*orderRow)(nil)).Where("id = ?", orderID).Exec(ctx); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

/* ------------------------------- mailbox -------------------------------- */

type pgMailbox PostgresStore

func (s *pgMailbox) Push(ctx context.Context, sessionID string, msg PendingMessage) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	row := &mailboxRow{SessionID: sessionID, Text: msg.Text, CreatedAt: msg.At.UTC()}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert mailbox message: %w", err)
	}
	return nil
}

func (s *pgMailbox) Pop(ctx context.Context, sessionID string) (PendingMessage, error) {
	var row mailboxRow
	err := s.db.NewRaw(`
		DELETE FROM relay_mailbox
		WHERE id = (
			SELECT id FROM relay_mailbox
			WHERE session_id = ?
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, session_id, text, created_at`, sessionID).Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingMessage{}, ErrMailboxEmpty
	}
	if err != nil {
		return PendingMessage{}, fmt.Errorf("pop mailbox message: %w", err)
	}
	return PendingMessage{Text: row.Text, At: row.CreatedAt}, nil
}
