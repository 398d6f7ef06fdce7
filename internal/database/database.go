package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shutdown-tracker/internal/models"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate creates the schema if it doesn't exist.
func (db *DB) Migrate(ctx context.Context) error {
	sql := `
	CREATE TABLE IF NOT EXISTS subscribers (
		id              BIGSERIAL PRIMARY KEY,
		telegram_id     BIGINT UNIQUE NOT NULL,
		username        TEXT NOT NULL DEFAULT '',
		location        TEXT NOT NULL DEFAULT '',
		group_key       TEXT NOT NULL DEFAULT '',
		notify_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_subscribers_binding
		ON subscribers (location, group_key);

	CREATE TABLE IF NOT EXISTS schedules (
		id           BIGSERIAL PRIMARY KEY,
		location     TEXT NOT NULL,
		group_key    TEXT NOT NULL,
		date         TEXT NOT NULL,
		kind         TEXT NOT NULL DEFAULT 'timetable',
		intervals    JSONB NOT NULL,
		image_url    TEXT NOT NULL DEFAULT '',
		fingerprint  TEXT NOT NULL,
		captured_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (location, group_key, date)
	);

	CREATE TABLE IF NOT EXISTS image_refs (
		location    TEXT PRIMARY KEY,
		url         TEXT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS notifications_sent (
		id             BIGSERIAL PRIMARY KEY,
		subscriber_id  BIGINT NOT NULL REFERENCES subscribers(id),
		location       TEXT NOT NULL,
		group_key      TEXT NOT NULL,
		date           TEXT NOT NULL,
		interval_start INT NOT NULL,
		sent_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (subscriber_id, location, group_key, date, interval_start)
	);
	`
	_, err := db.Pool.Exec(ctx, sql)
	return err
}

// ── Subscribers ──────────────────────────────────────────────────────

// UpsertSubscriber creates or refreshes a subscriber and returns the record.
func (db *DB) UpsertSubscriber(ctx context.Context, telegramID int64, username string) (*models.Subscriber, error) {
	var s models.Subscriber
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO subscribers (telegram_id, username)
		VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO UPDATE SET username = $2
		RETURNING id, telegram_id, username, location, group_key, notify_enabled, created_at
	`, telegramID, username).Scan(&s.ID, &s.TelegramID, &s.Username, &s.Location, &s.GroupKey, &s.NotifyEnabled, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSubscription binds the subscriber to a location and group-or-address key.
func (db *DB) SetSubscription(ctx context.Context, telegramID int64, location, groupKey string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE subscribers SET location = $2, group_key = $3 WHERE telegram_id = $1
	`, telegramID, location, groupKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscriber %d not found", telegramID)
	}
	return nil
}

// ToggleNotify flips the notification flag and returns the new state.
func (db *DB) ToggleNotify(ctx context.Context, telegramID int64) (bool, error) {
	var enabled bool
	err := db.Pool.QueryRow(ctx, `
		UPDATE subscribers SET notify_enabled = NOT notify_enabled
		WHERE telegram_id = $1
		RETURNING notify_enabled
	`, telegramID).Scan(&enabled)
	return enabled, err
}

// GetSubscriber returns the subscriber with the given Telegram ID, or nil.
func (db *DB) GetSubscriber(ctx context.Context, telegramID int64) (*models.Subscriber, error) {
	var s models.Subscriber
	err := db.Pool.QueryRow(ctx, `
		SELECT id, telegram_id, username, location, group_key, notify_enabled, created_at
		FROM subscribers WHERE telegram_id = $1
	`, telegramID).Scan(&s.ID, &s.TelegramID, &s.Username, &s.Location, &s.GroupKey, &s.NotifyEnabled, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubscribersByKey returns notification-enabled subscribers bound to the
// exact (location, group-or-address key).
func (db *DB) GetSubscribersByKey(ctx context.Context, location, groupKey string) ([]*models.Subscriber, error) {
	return db.querySubscribers(ctx, `
		SELECT id, telegram_id, username, location, group_key, notify_enabled, created_at
		FROM subscribers
		WHERE location = $1 AND group_key = $2 AND notify_enabled
		ORDER BY id
	`, location, groupKey)
}

// GetSubscribersByLocation returns notification-enabled subscribers of a
// location regardless of group, for location-wide broadcasts.
func (db *DB) GetSubscribersByLocation(ctx context.Context, location string) ([]*models.Subscriber, error) {
	return db.querySubscribers(ctx, `
		SELECT id, telegram_id, username, location, group_key, notify_enabled, created_at
		FROM subscribers
		WHERE location = $1 AND notify_enabled
		ORDER BY id
	`, location)
}

func (db *DB) querySubscribers(ctx context.Context, sql string, args ...any) ([]*models.Subscriber, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.TelegramID, &s.Username, &s.Location, &s.GroupKey, &s.NotifyEnabled, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

// DistinctSubscriberKeys returns the distinct non-empty group keys bound to
// a location. The refresh driver uses this for address-lookup locations.
func (db *DB) DistinctSubscriberKeys(ctx context.Context, location string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT group_key FROM subscribers
		WHERE location = $1 AND group_key != ''
		ORDER BY group_key
	`, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ── Schedules ────────────────────────────────────────────────────────

// DecideChange classifies a new fingerprint against the stored one.
// prev == nil means no snapshot existed for the key yet.
func DecideChange(prev *string, next string) models.ChangeResult {
	switch {
	case prev == nil:
		return models.ChangeNew
	case *prev == next:
		return models.ChangeUnchanged
	default:
		return models.ChangeChanged
	}
}

// UpsertSchedule stores a snapshot and reports whether it is new, changed or
// unchanged relative to the stored fingerprint. The write is an idempotent
// natural-key upsert; repeating it yields Unchanged.
func (db *DB) UpsertSchedule(ctx context.Context, snap models.ScheduleSnapshot) (models.ChangeResult, error) {
	intervalsJSON, err := json.Marshal(snap.Intervals)
	if err != nil {
		return models.ChangeUnchanged, fmt.Errorf("marshal intervals: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return models.ChangeUnchanged, err
	}
	defer tx.Rollback(ctx)

	var stored string
	var prev *string
	err = tx.QueryRow(ctx, `
		SELECT fingerprint FROM schedules
		WHERE location = $1 AND group_key = $2 AND date = $3
		FOR UPDATE
	`, snap.Location, snap.GroupKey, snap.Date).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return models.ChangeUnchanged, err
	default:
		prev = &stored
	}

	result := DecideChange(prev, snap.Fingerprint)

	_, err = tx.Exec(ctx, `
		INSERT INTO schedules (location, group_key, date, kind, intervals, image_url, fingerprint, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (location, group_key, date) DO UPDATE SET
			kind = $4, intervals = $5, image_url = $6, fingerprint = $7, captured_at = $8
	`, snap.Location, snap.GroupKey, snap.Date, snap.Kind, intervalsJSON, snap.ImageURL, snap.Fingerprint, snap.CapturedAt)
	if err != nil {
		return models.ChangeUnchanged, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.ChangeUnchanged, err
	}
	return result, nil
}

// GetSnapshot returns the stored snapshot for the exact key, or nil.
func (db *DB) GetSnapshot(ctx context.Context, location, groupKey, date string) (*models.ScheduleSnapshot, error) {
	var snap models.ScheduleSnapshot
	var intervalsJSON []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT location, group_key, date, kind, intervals, image_url, fingerprint, captured_at
		FROM schedules
		WHERE location = $1 AND group_key = $2 AND date = $3
	`, location, groupKey, date).Scan(
		&snap.Location, &snap.GroupKey, &snap.Date, &snap.Kind,
		&intervalsJSON, &snap.ImageURL, &snap.Fingerprint, &snap.CapturedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(intervalsJSON, &snap.Intervals); err != nil {
		return nil, fmt.Errorf("unmarshal intervals: %w", err)
	}
	return &snap, nil
}

// GetLastUpdate returns when the snapshot for the key was last captured, or
// nil when none is stored.
func (db *DB) GetLastUpdate(ctx context.Context, location, groupKey, date string) (*time.Time, error) {
	var at time.Time
	err := db.Pool.QueryRow(ctx, `
		SELECT captured_at FROM schedules
		WHERE location = $1 AND group_key = $2 AND date = $3
	`, location, groupKey, date).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

// SnapshotsForDate returns every stored snapshot for the given date. The
// notification evaluator sweeps these.
func (db *DB) SnapshotsForDate(ctx context.Context, date string) ([]*models.ScheduleSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT location, group_key, date, kind, intervals, image_url, fingerprint, captured_at
		FROM schedules WHERE date = $1
		ORDER BY location, group_key
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.ScheduleSnapshot
	for rows.Next() {
		var snap models.ScheduleSnapshot
		var intervalsJSON []byte
		if err := rows.Scan(
			&snap.Location, &snap.GroupKey, &snap.Date, &snap.Kind,
			&intervalsJSON, &snap.ImageURL, &snap.Fingerprint, &snap.CapturedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(intervalsJSON, &snap.Intervals); err != nil {
			return nil, fmt.Errorf("unmarshal intervals: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// ── Image references ─────────────────────────────────────────────────

// UpsertImageRef stores the latest schedule image URL for a location.
func (db *DB) UpsertImageRef(ctx context.Context, location, url string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO image_refs (location, url, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (location) DO UPDATE SET url = $2, updated_at = $3
	`, location, url, at)
	return err
}

// GetImageRef returns the stored image URL for a location, or "".
func (db *DB) GetImageRef(ctx context.Context, location string) (string, error) {
	var url string
	err := db.Pool.QueryRow(ctx, `SELECT url FROM image_refs WHERE location = $1`, location).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return url, err
}

// ── Notification records ─────────────────────────────────────────────

// InsertNotificationRecord records an alert before it is delivered. Returns
// false when a record for the tuple already exists — the caller must then
// skip delivery. This is the at-most-once guard.
func (db *DB) InsertNotificationRecord(ctx context.Context, subscriberID int64, location, groupKey, date string, intervalStart int) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO notifications_sent (subscriber_id, location, group_key, date, interval_start)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscriber_id, location, group_key, date, interval_start) DO NOTHING
	`, subscriberID, location, groupKey, date, intervalStart)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
