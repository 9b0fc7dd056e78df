package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"morph/internal/config"
)

// Store manages client and conversion-history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.WorkDir, "history.db"))
}

// OpenPath connects to the history database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the history database file.
func (s *Store) Path() string {
	return s.path
}

// EnsureClient registers the client if it is not already known.
func (s *Store) EnsureClient(ctx context.Context, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return errors.New("client id is empty")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO clients (client_id, first_seen) VALUES (?, ?)`,
		clientID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("ensure client: %w", err)
	}
	return nil
}

// GetClient fetches a client record, or nil when unknown.
func (s *Store) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT client_id, first_seen, banned, total_conversions FROM clients WHERE client_id = ?`,
		clientID,
	)
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// ListClients returns all known clients, newest first.
func (s *Store) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT client_id, first_seen, banned, total_conversions FROM clients ORDER BY first_seen DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// SetBanned bans or unbans a client. The client is registered if unknown so
// that a ban can precede the client's first conversion.
func (s *Store) SetBanned(ctx context.Context, clientID string, banned bool) error {
	if err := s.EnsureClient(ctx, clientID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE clients SET banned = ? WHERE client_id = ?`,
		boolToInt(banned),
		clientID,
	)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

// IsBanned reports whether the client is banned. Unknown clients are not banned.
func (s *Store) IsBanned(ctx context.Context, clientID string) (bool, error) {
	var banned int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT banned FROM clients WHERE client_id = ?`,
		clientID,
	).Scan(&banned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("banned check: %w", err)
	}
	return banned != 0, nil
}

// RecordConversion appends a history row and bumps the client's conversion count.
func (s *Store) RecordConversion(ctx context.Context, entry Entry) error {
	if err := s.EnsureClient(ctx, entry.ClientID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO conversions (
            client_id, source_format, target_format, input_size, output_size,
            duration_ms, success, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ClientID,
		strings.ToLower(entry.SourceFormat),
		strings.ToLower(entry.TargetFormat),
		entry.InputSize,
		entry.OutputSize,
		entry.Duration.Milliseconds(),
		boolToInt(entry.Success),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`UPDATE clients SET total_conversions = total_conversions + 1 WHERE client_id = ?`,
		entry.ClientID,
	)
	if err != nil {
		return fmt.Errorf("bump conversion count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// ForClient returns the client's most recent conversions, newest first.
func (s *Store) ForClient(ctx context.Context, clientID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, client_id, source_format, target_format, input_size, output_size,
                duration_ms, success, created_at
         FROM conversions WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`,
		clientID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("client history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats aggregates system-wide conversion totals.
func (s *Store) Stats(ctx context.Context) (SystemStats, error) {
	stats := SystemStats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM clients`).Scan(&stats.TotalClients); err != nil {
		return stats, fmt.Errorf("count clients: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversions`).Scan(&stats.TotalConversions); err != nil {
		return stats, fmt.Errorf("count conversions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversions WHERE success = 1`).Scan(&stats.SuccessfulConversions); err != nil {
		return stats, fmt.Errorf("count successes: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source_format, target_format, COUNT(1) AS count
         FROM conversions WHERE success = 1
         GROUP BY source_format, target_format
         ORDER BY count DESC LIMIT 5`,
	)
	if err != nil {
		return stats, fmt.Errorf("popular conversions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pair ConversionPair
		if err := rows.Scan(&pair.SourceFormat, &pair.TargetFormat, &pair.Count); err != nil {
			return stats, err
		}
		stats.PopularConversions = append(stats.PopularConversions, pair)
	}
	return stats, rows.Err()
}

// Activity summarizes recent usage: daily conversion counts for the last
// seven days, the source format distribution, and active client counts.
func (s *Store) Activity(ctx context.Context) (ActivityStats, error) {
	stats := ActivityStats{}

	dailyRows, err := s.db.QueryContext(
		ctx,
		`SELECT DATE(created_at), COUNT(1)
         FROM conversions
         WHERE created_at >= datetime('now', '-7 days')
         GROUP BY DATE(created_at)
         ORDER BY DATE(created_at) DESC`,
	)
	if err != nil {
		return stats, fmt.Errorf("daily conversions: %w", err)
	}
	defer dailyRows.Close()
	for dailyRows.Next() {
		var day DailyCount
		if err := dailyRows.Scan(&day.Day, &day.Count); err != nil {
			return stats, err
		}
		stats.DailyConversions = append(stats.DailyConversions, day)
	}
	if err := dailyRows.Err(); err != nil {
		return stats, err
	}

	formatRows, err := s.db.QueryContext(
		ctx,
		`SELECT source_format, COUNT(1)
         FROM conversions
         GROUP BY source_format
         ORDER BY COUNT(1) DESC LIMIT 10`,
	)
	if err != nil {
		return stats, fmt.Errorf("format distribution: %w", err)
	}
	defer formatRows.Close()
	for formatRows.Next() {
		var entry FormatCount
		if err := formatRows.Scan(&entry.Format, &entry.Count); err != nil {
			return stats, err
		}
		stats.FormatDistribution = append(stats.FormatDistribution, entry)
	}
	if err := formatRows.Err(); err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT client_id) FROM conversions WHERE created_at >= datetime('now', '-1 day')`,
	).Scan(&stats.DailyActiveClients)
	if err != nil {
		return stats, fmt.Errorf("daily active clients: %w", err)
	}

	err = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT client_id) FROM conversions WHERE created_at >= datetime('now', '-7 days')`,
	).Scan(&stats.WeeklyActiveClients)
	if err != nil {
		return stats, fmt.Errorf("weekly active clients: %w", err)
	}

	return stats, nil
}

func scanClient(scanner interface{ Scan(dest ...any) error }) (*Client, error) {
	var (
		clientID     string
		firstSeenRaw string
		banned       int
		total        int
	)
	if err := scanner.Scan(&clientID, &firstSeenRaw, &banned, &total); err != nil {
		return nil, err
	}
	client := &Client{
		ClientID:         clientID,
		Banned:           banned != 0,
		TotalConversions: total,
	}
	if firstSeen, err := parseTimeString(firstSeenRaw); err == nil {
		client.FirstSeen = firstSeen
	}
	return client, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry      Entry
		durationMS int64
		success    int
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.ClientID,
		&entry.SourceFormat,
		&entry.TargetFormat,
		&entry.InputSize,
		&entry.OutputSize,
		&durationMS,
		&success,
		&createdRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	entry.Success = success != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
