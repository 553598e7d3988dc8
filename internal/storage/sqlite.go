package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"wallbot/internal/model"
	"wallbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertSearch inserts a search or, if the chat already has one with the
// same keywords, refreshes its parameters and reactivates it. The row ID
// and creation time of an existing search are preserved.
func (s *SQLite) UpsertSearch(ctx context.Context, search *model.Search) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches
		     (chat_id, keywords, min_price, max_price, category_ids, distance,
		      publish_within, order_by, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id, keywords) DO UPDATE SET
		     min_price = excluded.min_price,
		     max_price = excluded.max_price,
		     category_ids = excluded.category_ids,
		     distance = excluded.distance,
		     publish_within = excluded.publish_within,
		     order_by = excluded.order_by,
		     is_active = 1,
		     updated_at = excluded.updated_at`,
		search.ChatID, search.Keywords, search.MinPrice, search.MaxPrice,
		search.CategoryIDs, search.Distance, search.PublishWithin, search.OrderBy,
		boolToInt(search.IsActive), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert search: %w", err)
	}

	// LastInsertId is unreliable on the conflict path; read back the row id.
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM searches WHERE chat_id = ? AND keywords = ?`,
		search.ChatID, search.Keywords,
	)
	var created string
	if err := row.Scan(&search.ID, &created); err != nil {
		return fmt.Errorf("read back search: %w", err)
	}
	search.CreatedAt, _ = time.Parse(timeLayout, created)
	search.UpdatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListSearches returns the active searches of a chat, newest first.
func (s *SQLite) ListSearches(ctx context.Context, chatID int64) ([]model.Search, error) {
	rows, err := s.db.QueryContext(ctx,
		searchSelect+` WHERE chat_id = ? AND is_active = 1 ORDER BY created_at DESC, id DESC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSearches(rows)
}

// ListActiveSearches returns every active search across all chats.
func (s *SQLite) ListActiveSearches(ctx context.Context) ([]model.Search, error) {
	rows, err := s.db.QueryContext(ctx,
		searchSelect+` WHERE is_active = 1 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active searches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSearches(rows)
}

// DeactivateSearch soft-deletes a search. Returns false when no active
// search with the given keywords exists for the chat.
func (s *SQLite) DeactivateSearch(ctx context.Context, chatID int64, keywords string) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET is_active = 0, updated_at = ?
		 WHERE chat_id = ? AND keywords = ? AND is_active = 1`,
		now, chatID, keywords,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate search: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetListing returns the tracked listing for (itemID, chatID), or nil if
// the item has not been tracked for that chat yet.
func (s *SQLite) GetListing(ctx context.Context, itemID string, chatID int64) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT item_id, chat_id, title, price, detail_path, seller_id, note, first_seen_at, updated_at
		 FROM listings WHERE item_id = ? AND chat_id = ?`,
		itemID, chatID,
	)

	var l model.Listing
	var firstSeen, updated string
	err := row.Scan(&l.ItemID, &l.ChatID, &l.Title, &l.Price, &l.DetailPath,
		&l.SellerID, &l.Note, &firstSeen, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	l.FirstSeenAt, _ = time.Parse(timeLayout, firstSeen)
	l.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &l, nil
}

// UpsertListing inserts a tracked listing. A concurrent insert for the same
// (item_id, chat_id) key is resolved last-write-wins; first_seen_at keeps
// the original value.
func (s *SQLite) UpsertListing(ctx context.Context, l *model.Listing) error {
	firstSeen := l.FirstSeenAt.UTC().Format(timeLayout)
	updated := l.UpdatedAt.UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings
		     (item_id, chat_id, title, price, detail_path, seller_id, note, first_seen_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_id, chat_id) DO UPDATE SET
		     title = excluded.title,
		     price = excluded.price,
		     detail_path = excluded.detail_path,
		     seller_id = excluded.seller_id,
		     note = excluded.note,
		     updated_at = excluded.updated_at`,
		l.ItemID, l.ChatID, l.Title, l.Price, l.DetailPath, l.SellerID, l.Note,
		firstSeen, updated,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

// UpdateListingPrice records a new price and observation note on an
// existing tracked listing.
func (s *SQLite) UpdateListingPrice(ctx context.Context, itemID string, chatID int64, price float64, note string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET price = ?, note = ?, updated_at = ?
		 WHERE item_id = ? AND chat_id = ?`,
		price, note, now, itemID, chatID,
	)
	if err != nil {
		return fmt.Errorf("update listing price: %w", err)
	}
	return nil
}

// DeleteListingsOlderThan removes tracked listings first seen earlier than
// the horizon and returns the number of rows deleted.
func (s *SQLite) DeleteListingsOlderThan(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-horizon).Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM listings WHERE first_seen_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old listings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CreateNotification inserts an unsent notification audit record and
// populates its ID and CreatedAt.
func (s *SQLite) CreateNotification(ctx context.Context, n *model.Notification) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (chat_id, message, item_id, kind, sent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ChatID, n.Message, n.ItemID, string(n.Kind), boolToInt(n.Sent), now,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// MarkNotificationSent flags a notification as delivered.
func (s *SQLite) MarkNotificationSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET sent = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// ListUnsentNotifications returns undelivered notifications, oldest first.
func (s *SQLite) ListUnsentNotifications(ctx context.Context) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, message, item_id, kind, sent, created_at
		 FROM notifications WHERE sent = 0 ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var kind, created string
		var sent int
		if err := rows.Scan(&n.ID, &n.ChatID, &n.Message, &n.ItemID, &kind, &sent, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = model.NotificationKind(kind)
		n.Sent = sent == 1
		n.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

const searchSelect = `SELECT id, chat_id, keywords, min_price, max_price, category_ids,
		distance, publish_within, order_by, is_active, created_at, updated_at
	 FROM searches`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSearches(rows *sql.Rows) ([]model.Search, error) {
	var searches []model.Search
	for rows.Next() {
		var s model.Search
		var isActive int
		var minPrice, maxPrice sql.NullFloat64
		var created, updated string
		err := rows.Scan(&s.ID, &s.ChatID, &s.Keywords, &minPrice, &maxPrice,
			&s.CategoryIDs, &s.Distance, &s.PublishWithin, &s.OrderBy,
			&isActive, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		if minPrice.Valid {
			v := minPrice.Float64
			s.MinPrice = &v
		}
		if maxPrice.Valid {
			v := maxPrice.Float64
			s.MaxPrice = &v
		}
		s.IsActive = isActive == 1
		s.CreatedAt, _ = time.Parse(timeLayout, created)
		s.UpdatedAt, _ = time.Parse(timeLayout, updated)
		searches = append(searches, s)
	}
	return searches, rows.Err()
}
