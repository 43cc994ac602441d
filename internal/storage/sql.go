package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-sql/civil"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"pantrybot/pkg/logx"
)

type dialect struct {
	name       string
	driver     string
	goose      goose.Dialect
	migrations string
	ph         sq.PlaceholderFormat
}

var (
	dialectSQLite = dialect{
		name: "sqlite", driver: "sqlite", goose: goose.DialectSQLite3,
		migrations: "sqlite", ph: sq.Question,
	}
	dialectPostgres = dialect{
		name: "postgres", driver: "pgx", goose: goose.DialectPostgres,
		migrations: "postgres", ph: sq.Dollar,
	}
)

const (
	userColumns     = "id, chat_id, display_name, lead_days, notify_at, created_at"
	itemColumns     = "id, user_id, name, expiration_date, registered_at, notification_sent"
	deliveryColumns = "notice_id, item_id, user_id, item_name, path, decision_day, ok, error, at"
)

// sqlStore implements Store for every database/sql dialect we ship.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	qb  sq.StatementBuilderType
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busy.Milliseconds())

	db, err := sql.Open(dialectSQLite.driver, dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite away from SQLITE_BUSY and serializes claims.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return newSQLStore(ctx, db, dialectSQLite, log)
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open(dialectPostgres.driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return newSQLStore(ctx, db, dialectPostgres, log)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, log logx.Logger) (*sqlStore, error) {
	if err := migrate(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("storage ready", logx.String("dialect", d.name))
	return &sqlStore{
		db:  db,
		d:   d,
		qb:  sq.StatementBuilder.PlaceholderFormat(d.ph),
		log: log,
	}, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- users ----

func (s *sqlStore) EnsureUser(ctx context.Context, chatID int64, displayName string, def UserDefaults) (User, bool, error) {
	u, err := s.GetUserByChat(ctx, chatID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}

	now := time.Now()
	q, args, err := s.qb.Insert("users").
		Columns("chat_id", "display_name", "lead_days", "notify_at", "created_at").
		Values(chatID, displayName, def.LeadDays, FormatClock(def.NotifyAt), now.UnixMilli()).
		Suffix("ON CONFLICT (chat_id) DO NOTHING").
		ToSql()
	if err != nil {
		return User{}, false, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return User{}, false, fmt.Errorf("insert user: %w", err)
	}
	n, _ := res.RowsAffected()
	u, err = s.GetUserByChat(ctx, chatID)
	return u, err == nil && n == 1, err
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (User, error) {
	return s.getUser(ctx, sq.Eq{"id": id})
}

func (s *sqlStore) GetUserByChat(ctx context.Context, chatID int64) (User, error) {
	return s.getUser(ctx, sq.Eq{"chat_id": chatID})
}

func (s *sqlStore) getUser(ctx context.Context, where sq.Eq) (User, error) {
	q, args, err := s.qb.Select(userColumns).From("users").Where(where).ToSql()
	if err != nil {
		return User{}, err
	}
	return scanUser(s.db.QueryRowContext(ctx, q, args...))
}

func (s *sqlStore) UpdateUserSettings(ctx context.Context, id int64, in UserSettings) (User, error) {
	ub := s.qb.Update("users").Where(sq.Eq{"id": id}).Suffix("RETURNING " + userColumns)
	changed := false
	if in.LeadDays != nil {
		ub = ub.Set("lead_days", *in.LeadDays)
		changed = true
	}
	if in.NotifyAt != nil {
		ub = ub.Set("notify_at", FormatClock(*in.NotifyAt))
		changed = true
	}
	if in.DisplayName != nil {
		ub = ub.Set("display_name", *in.DisplayName)
		changed = true
	}
	if !changed {
		return s.GetUser(ctx, id)
	}
	q, args, err := ub.ToSql()
	if err != nil {
		return User{}, err
	}
	return scanUser(s.db.QueryRowContext(ctx, q, args...))
}

func (s *sqlStore) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"deliveries", "items"} {
		q, args, err := s.qb.Delete(table).Where(sq.Eq{"user_id": id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	q, args, err := s.qb.Delete("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *sqlStore) FindUsersWithNotifyTime(ctx context.Context, t civil.Time) ([]User, error) {
	q, args, err := s.qb.Select(userColumns).From("users").
		Where(sq.Eq{"notify_at": FormatClock(t)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- items ----

func (s *sqlStore) CreateItem(ctx context.Context, it Item) (Item, error) {
	if it.RegisteredAt.IsZero() {
		it.RegisteredAt = time.Now()
	}
	q, args, err := s.qb.Insert("items").
		Columns("user_id", "name", "expiration_date", "registered_at", "notification_sent").
		Values(it.UserID, it.Name, dateValue(it.Expiration), it.RegisteredAt.UnixMilli(), it.NotificationSent).
		Suffix("RETURNING " + itemColumns).
		ToSql()
	if err != nil {
		return Item{}, err
	}
	out, err := scanItem(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return out, nil
}

func (s *sqlStore) GetItem(ctx context.Context, userID, itemID int64) (Item, error) {
	q, args, err := s.qb.Select(itemColumns).From("items").
		Where(sq.Eq{"id": itemID, "user_id": userID}).
		ToSql()
	if err != nil {
		return Item{}, err
	}
	return scanItem(s.db.QueryRowContext(ctx, q, args...))
}

// UpdateItem applies u in one statement. A changed expiration clears the
// sent flag; SET expressions see the pre-update row, so the comparison is
// against the old date.
func (s *sqlStore) UpdateItem(ctx context.Context, userID int64, u ItemUpdate) (Item, error) {
	ub := s.qb.Update("items").
		Where(sq.Eq{"id": u.ID, "user_id": userID}).
		Suffix("RETURNING " + itemColumns)
	changed := false
	if u.Name != nil {
		ub = ub.Set("name", *u.Name)
		changed = true
	}
	if u.Expiration != nil {
		d := u.Expiration.String()
		ub = ub.Set("expiration_date", d).
			Set("notification_sent", sq.Expr("CASE WHEN expiration_date = ? THEN notification_sent ELSE FALSE END", d)).
			Set("notification_claim", sq.Expr("CASE WHEN expiration_date = ? THEN notification_claim ELSE NULL END", d))
		changed = true
	}
	if !changed {
		return s.GetItem(ctx, userID, u.ID)
	}
	q, args, err := ub.ToSql()
	if err != nil {
		return Item{}, err
	}
	return scanItem(s.db.QueryRowContext(ctx, q, args...))
}

func (s *sqlStore) DeleteItem(ctx context.Context, userID, itemID int64) error {
	q, args, err := s.qb.Delete("items").Where(sq.Eq{"id": itemID, "user_id": userID}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListItems(ctx context.Context, userID int64) ([]Item, error) {
	return s.queryItems(ctx, s.qb.Select(itemColumns).From("items").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("expiration_date IS NULL", "expiration_date", "id"))
}

func (s *sqlStore) FindItemsDueOn(ctx context.Context, userID int64, date civil.Date) ([]Item, error) {
	return s.queryItems(ctx, s.qb.Select(itemColumns).From("items").
		Where(sq.Eq{"user_id": userID, "expiration_date": date.String()}).
		OrderBy("id"))
}

func (s *sqlStore) queryItems(ctx context.Context, b sq.SelectBuilder) ([]Item, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ---- dedup flag ----

func (s *sqlStore) ClaimNotification(ctx context.Context, itemID int64, exp civil.Date, claim string) (bool, error) {
	q, args, err := s.qb.Update("items").
		Set("notification_sent", true).
		Set("notification_claim", claim).
		Where(sq.Eq{"id": itemID, "notification_sent": false, "expiration_date": exp.String()}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("claim item %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqlStore) ReleaseNotification(ctx context.Context, itemID int64, claim string) error {
	q, args, err := s.qb.Update("items").
		Set("notification_sent", false).
		Set("notification_claim", nil).
		Where(sq.Eq{"id": itemID, "notification_claim": claim}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("release item %d: %w", itemID, err)
	}
	return nil
}

// ---- deliveries ----

func (s *sqlStore) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	q, args, err := s.qb.Insert("deliveries").
		Columns(strings.Split(strings.ReplaceAll(deliveryColumns, " ", ""), ",")...).
		Values(d.NoticeID, d.ItemID, d.UserID, d.ItemName, d.Path, d.DecisionDay.String(), d.OK, nullStr(d.Error), d.At.UnixMilli()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *sqlStore) ListDeliveries(ctx context.Context, userID int64, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	q, args, err := s.qb.Select(deliveryColumns).From("deliveries").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d      Delivery
			day    string
			errStr sql.NullString
			at     int64
		)
		if err := rows.Scan(&d.NoticeID, &d.ItemID, &d.UserID, &d.ItemName, &d.Path, &day, &d.OK, &errStr, &at); err != nil {
			return nil, err
		}
		if d.DecisionDay, err = civil.ParseDate(day); err != nil {
			return nil, fmt.Errorf("delivery decision_day %q: %w", day, err)
		}
		d.Error = errStr.String
		d.At = time.UnixMilli(at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ---- scanning ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (User, error) {
	var (
		u       User
		at      string
		created int64
	)
	if err := r.Scan(&u.ID, &u.ChatID, &u.DisplayName, &u.LeadDays, &at, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	t, err := ParseClock(at)
	if err != nil {
		return User{}, fmt.Errorf("user %d notify_at: %w", u.ID, err)
	}
	u.NotifyAt = t
	u.CreatedAt = time.UnixMilli(created)
	return u, nil
}

func scanItem(r rowScanner) (Item, error) {
	var (
		it  Item
		exp sql.NullString
		reg int64
	)
	if err := r.Scan(&it.ID, &it.UserID, &it.Name, &exp, &reg, &it.NotificationSent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	if exp.Valid && exp.String != "" {
		d, err := civil.ParseDate(exp.String)
		if err != nil {
			return Item{}, fmt.Errorf("item %d expiration_date %q: %w", it.ID, exp.String, err)
		}
		it.Expiration = &d
	}
	it.RegisteredAt = time.UnixMilli(reg)
	return it, nil
}

func dateValue(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
