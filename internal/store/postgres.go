package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"giapha/internal/model"
)

// Postgres keeps each collection as a (id, data JSONB, created_at) table so
// the document semantics of the port (partial merge, whole-document reads)
// survive unchanged. Schema lives under migrations/.
type Postgres struct {
	session
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create postgres pool: %w", err)
	}
	return &Postgres{session: session{q: pool}, pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Serializable transactions abort with SQLSTATE 40001 when they conflict.
// The retry re-runs fn from the top, so its precondition reads see the
// winner's committed state.
const maxSerializationAttempts = 3

// RunTransaction runs fn against a transactional session. Reads inside the
// callback observe the transaction's own writes; any error rolls the whole
// transaction back. Serialization conflicts are retried a bounded number of
// times before the error surfaces.
func (p *Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return withSerializationRetry(maxSerializationAttempts, func() error {
		return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(ctx, &session{q: tx})
		})
	})
}

func withSerializationRetry(attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = run()
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

// isSerializationFailure matches serialization_failure and deadlock_detected,
// the two retryable abort codes of a Serializable transaction.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// querier is the common surface of *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type session struct {
	q querier
}

func getDoc[T any](ctx context.Context, q querier, query string, notFound error, args ...any) (T, error) {
	var out T
	var raw []byte
	if err := q.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, notFound
		}
		return out, fmt.Errorf("store: query document: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("store: decode document: %w", err)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("store: decode document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate documents: %w", err)
	}
	return out, nil
}

func insertDoc(ctx context.Context, q querier, table string, id uuid.UUID, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2)`, table), id.String(), raw); err != nil {
		return fmt.Errorf("store: insert into %s (id=%s): %w", table, id, err)
	}
	return nil
}

func mergeDoc(ctx context.Context, q querier, table string, id uuid.UUID, fields map[string]any, notFound error) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: marshal field map: %w", err)
	}
	tag, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET data = data || $2::jsonb WHERE id = $1`, table), id.String(), raw)
	if err != nil {
		return fmt.Errorf("store: merge into %s (id=%s): %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func deleteDoc(ctx context.Context, q querier, table string, id uuid.UUID, notFound error) error {
	tag, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id.String())
	if err != nil {
		return fmt.Errorf("store: delete from %s (id=%s): %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// --- persons ---

func (s *session) ListPersons(ctx context.Context) ([]model.Person, error) {
	return listDocs[model.Person](ctx, s.q, `SELECT data FROM persons ORDER BY created_at, id`)
}

func (s *session) GetPerson(ctx context.Context, id uuid.UUID) (model.Person, error) {
	return getDoc[model.Person](ctx, s.q, `SELECT data FROM persons WHERE id = $1`, ErrPersonNotFound, id.String())
}

func (s *session) CreatePerson(ctx context.Context, person model.Person) error {
	return insertDoc(ctx, s.q, "persons", person.ID, person)
}

func (s *session) SetPerson(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return mergeDoc(ctx, s.q, "persons", id, fields, ErrPersonNotFound)
}

func (s *session) DeletePerson(ctx context.Context, id uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM private_contacts WHERE id = $1`, id.String()); err != nil {
		return fmt.Errorf("store: delete private contact (id=%s): %w", id, err)
	}
	return deleteDoc(ctx, s.q, "persons", id, ErrPersonNotFound)
}

// --- unions ---

func (s *session) ListUnions(ctx context.Context) ([]model.Union, error) {
	return listDocs[model.Union](ctx, s.q, `SELECT data FROM unions ORDER BY created_at, id`)
}

func (s *session) CreateUnion(ctx context.Context, union model.Union) error {
	return insertDoc(ctx, s.q, "unions", union.ID, union)
}

func (s *session) DeleteUnion(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, s.q, "unions", id, ErrUnionNotFound)
}

// --- private contacts ---

func (s *session) GetPrivateContact(ctx context.Context, personID uuid.UUID) (model.PrivateContact, error) {
	return getDoc[model.PrivateContact](ctx, s.q, `SELECT data FROM private_contacts WHERE id = $1`, ErrContactNotFound, personID.String())
}

func (s *session) SetPrivateContact(ctx context.Context, personID uuid.UUID, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: marshal field map: %w", err)
	}
	seed, err := json.Marshal(model.PrivateContact{PersonID: personID})
	if err != nil {
		return fmt.Errorf("store: marshal contact seed: %w", err)
	}
	// Upsert: the privileged record is created lazily on first write.
	_, err = s.q.Exec(ctx, `
		INSERT INTO private_contacts (id, data) VALUES ($1, $2::jsonb || $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET data = private_contacts.data || $3::jsonb`,
		personID.String(), seed, raw)
	if err != nil {
		return fmt.Errorf("store: merge private contact (id=%s): %w", personID, err)
	}
	return nil
}

// --- accounts ---

func (s *session) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return listDocs[model.Account](ctx, s.q, `SELECT data FROM accounts ORDER BY created_at, id`)
}

func (s *session) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return getDoc[model.Account](ctx, s.q, `SELECT data FROM accounts WHERE id = $1`, ErrAccountNotFound, id.String())
}

func (s *session) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	return getDoc[model.Account](ctx, s.q, `SELECT data FROM accounts WHERE data->>'email' = $1`, ErrAccountNotFound, email)
}

func (s *session) CreateAccount(ctx context.Context, account model.Account) error {
	return insertDoc(ctx, s.q, "accounts", account.ID, account)
}

func (s *session) SetAccount(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return mergeDoc(ctx, s.q, "accounts", id, fields, ErrAccountNotFound)
}

// --- proposals ---

func (s *session) ListProposals(ctx context.Context, params ListProposalsParams) ([]model.Proposal, error) {
	if params.Status.IsSet {
		return listDocs[model.Proposal](ctx, s.q,
			`SELECT data FROM proposals WHERE data->>'status' = $1 ORDER BY created_at, id`,
			string(params.Status.Val))
	}
	return listDocs[model.Proposal](ctx, s.q, `SELECT data FROM proposals ORDER BY created_at, id`)
}

func (s *session) GetProposal(ctx context.Context, id uuid.UUID) (model.Proposal, error) {
	return getDoc[model.Proposal](ctx, s.q, `SELECT data FROM proposals WHERE id = $1`, ErrProposalNotFound, id.String())
}

func (s *session) CreateProposal(ctx context.Context, proposal model.Proposal) error {
	return insertDoc(ctx, s.q, "proposals", proposal.ID, proposal)
}

func (s *session) SetProposal(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return mergeDoc(ctx, s.q, "proposals", id, fields, ErrProposalNotFound)
}

// --- stories ---

func (s *session) ListStories(ctx context.Context) ([]model.Story, error) {
	return listDocs[model.Story](ctx, s.q, `SELECT data FROM stories ORDER BY created_at DESC, id`)
}

func (s *session) CreateStory(ctx context.Context, story model.Story) error {
	return insertDoc(ctx, s.q, "stories", story.ID, story)
}

func (s *session) DeleteStory(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, s.q, "stories", id, ErrStoryNotFound)
}

// --- audit / notifications ---

func (s *session) AppendAuditEvent(ctx context.Context, event model.AuditEvent) error {
	return insertDoc(ctx, s.q, "audit_events", event.ID, event)
}

func (s *session) CreateNotification(ctx context.Context, notification model.Notification) error {
	return insertDoc(ctx, s.q, "notifications", notification.ID, notification)
}

func (s *session) ListNotifications(ctx context.Context, params ListNotificationsParams) ([]model.Notification, error) {
	if params.Unread {
		return listDocs[model.Notification](ctx, s.q,
			`SELECT data FROM notifications WHERE data->>'ownerId' = $1 AND (data->>'isRead')::boolean = false ORDER BY created_at DESC, id`,
			params.OwnerID.String())
	}
	return listDocs[model.Notification](ctx, s.q,
		`SELECT data FROM notifications WHERE data->>'ownerId' = $1 ORDER BY created_at DESC, id`,
		params.OwnerID.String())
}

var _ Store = (*Postgres)(nil)
var _ Tx = (*session)(nil)
