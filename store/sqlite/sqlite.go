/*
Package sqlite provides a SQLite-backed implementation of commission.Store.

PURPOSE:
  Implements every repository interface using database/sql + go-sqlite3.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

UNIQUENESS ENFORCEMENT:
  The idempotency of the monthly aggregation rests on the UNIQUE index
  over scout_commissions(scout_id, artist_id, period). A duplicate
  insert fails at the storage layer and is surfaced as
  commission.ErrDuplicateCommission - an application-level pre-check
  alone would race under overlapping batch runs.

LEDGER SEMANTICS:
  scout_commissions rows are inserted once; the only UPDATEs allowed
  are the PENDING -> PAID and PENDING -> FAILED status transitions
  (both WHERE status = 'PENDING', so terminal rows stay immutable).

KEY TABLES:
  scouts:             Scout records with lifetime counters
  artists:            Artist records with current tier
  tier_payments:      Ordered tier-payment history per artist
  discoveries:        Scout-to-artist referrals and conversion state
  listener_referrals: Scout-to-listener referrals
  playbacks:          Listener play events
  scout_commissions:  The commission ledger
  settlement_runs:    Settlement audit trail

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/commissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - commission/repository.go: Interface definitions and contracts
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// Store implements commission.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ commission.Store = (*Store)(nil)

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent; the
	// store mutex serializes access anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scouts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		lifetime_earnings TEXT NOT NULL DEFAULT '0',
		lifetime_commissions TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scouts_status ON scouts(status);

	CREATE TABLE IF NOT EXISTS artists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'FREE',
		last_upgrade_at TEXT
	);

	CREATE TABLE IF NOT EXISTS tier_payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artist_id TEXT NOT NULL,
		tier TEXT NOT NULL,
		period TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tier_payments_artist_created
		ON tier_payments(artist_id, created_at);

	CREATE TABLE IF NOT EXISTS discoveries (
		scout_id TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		converted_at TEXT,
		prepurchase INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (scout_id, artist_id)
	);

	CREATE INDEX IF NOT EXISTS idx_discoveries_scout ON discoveries(scout_id);

	CREATE TABLE IF NOT EXISTS listener_referrals (
		scout_id TEXT NOT NULL,
		listener_id TEXT NOT NULL,
		PRIMARY KEY (scout_id, listener_id)
	);

	CREATE TABLE IF NOT EXISTS playbacks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		listener_id TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		played_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_playbacks_artist_played
		ON playbacks(artist_id, played_at);

	CREATE TABLE IF NOT EXISTS scout_commissions (
		id TEXT PRIMARY KEY,
		scout_id TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		period TEXT NOT NULL,
		tier TEXT NOT NULL,
		payment_amount TEXT NOT NULL,
		rate TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		upgrade_bonus INTEGER NOT NULL DEFAULT 0,
		influence_bonus INTEGER NOT NULL DEFAULT 0,
		bonus_amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		months_elapsed INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		failure_reason TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	-- One ledger row per (scout, artist, period). Re-running the
	-- monthly aggregation hits this constraint instead of
	-- double-counting.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_commissions_scout_artist_period
		ON scout_commissions(scout_id, artist_id, period);

	CREATE INDEX IF NOT EXISTS idx_commissions_period_status
		ON scout_commissions(period, status);
	CREATE INDEX IF NOT EXISTS idx_commissions_scout
		ON scout_commissions(scout_id, period);

	CREATE TABLE IF NOT EXISTS settlement_runs (
		id TEXT PRIMARY KEY,
		period TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		total_paid TEXT NOT NULL DEFAULT '0',
		payout_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_settlement_runs_period
		ON settlement_runs(period);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the subset of *sql.DB and *sql.Tx the queries below run
// through, so every repository method works both on the connection and
// inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SEEDING - upserts for records owned by the wider platform
// =============================================================================

func (s *Store) SaveScout(ctx context.Context, scout commission.Scout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scouts (id, name, status, lifetime_earnings, lifetime_commissions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			lifetime_earnings = excluded.lifetime_earnings,
			lifetime_commissions = excluded.lifetime_commissions`,
		scout.ID, scout.Name, scout.Status,
		scout.LifetimeEarnings.String(), scout.LifetimeCommissions.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save scout %s: %w", scout.ID, err)
	}
	return nil
}

func (s *Store) SaveArtist(ctx context.Context, artist commission.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (id, name, tier, last_upgrade_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			last_upgrade_at = excluded.last_upgrade_at`,
		artist.ID, artist.Name, artist.Tier, nullTime(artist.LastUpgradeAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save artist %s: %w", artist.ID, err)
	}

	for _, p := range artist.Payments {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tier_payments (artist_id, tier, period, created_at)
			VALUES (?, ?, ?, ?)`,
			artist.ID, p.Tier, p.Period, p.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to save tier payment for %s: %w", artist.ID, err)
		}
	}
	return nil
}

func (s *Store) SaveDiscovery(ctx context.Context, d commission.Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convertedAt any
	prepurchase := 0
	if d.Conversion.Converted() {
		convertedAt = d.Conversion.At().UTC().Format(time.RFC3339)
		if d.Conversion.Prepurchase() {
			prepurchase = 1
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discoveries (scout_id, artist_id, status, converted_at, prepurchase)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scout_id, artist_id) DO UPDATE SET
			status = excluded.status,
			converted_at = excluded.converted_at,
			prepurchase = excluded.prepurchase`,
		d.ScoutID, d.ArtistID, d.Status, convertedAt, prepurchase,
	)
	if err != nil {
		return fmt.Errorf("failed to save discovery %s/%s: %w", d.ScoutID, d.ArtistID, err)
	}
	return nil
}

func (s *Store) AddListenerReferral(ctx context.Context, r commission.ListenerReferral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO listener_referrals (scout_id, listener_id) VALUES (?, ?)`,
		r.ScoutID, r.ListenerID,
	)
	if err != nil {
		return fmt.Errorf("failed to save listener referral %s/%s: %w", r.ScoutID, r.ListenerID, err)
	}
	return nil
}

func (s *Store) AddPlayback(ctx context.Context, p commission.Playback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playbacks (listener_id, artist_id, played_at) VALUES (?, ?, ?)`,
		p.ListenerID, p.ArtistID, p.PlayedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save playback: %w", err)
	}
	return nil
}

// =============================================================================
// SCOUT REPOSITORY
// =============================================================================

func (s *Store) Scout(ctx context.Context, id commission.ScoutID) (*commission.Scout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getScout(ctx, s.db, id)
}

func getScout(ctx context.Context, db dbtx, id commission.ScoutID) (*commission.Scout, error) {
	var (
		scout       commission.Scout
		earnings    string
		commissions string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, status, lifetime_earnings, lifetime_commissions
		FROM scouts WHERE id = ?`, id).
		Scan(&scout.ID, &scout.Name, &scout.Status, &earnings, &commissions)
	if err == sql.ErrNoRows {
		return nil, commission.ErrScoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scout: %w", err)
	}
	scout.LifetimeEarnings = mustDecimal(earnings)
	scout.LifetimeCommissions = mustDecimal(commissions)
	return &scout, nil
}

func (s *Store) ActiveScouts(ctx context.Context) ([]commission.Scout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeScouts(ctx, s.db)
}

func activeScouts(ctx context.Context, db dbtx) ([]commission.Scout, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, status, lifetime_earnings, lifetime_commissions
		FROM scouts WHERE status = ? ORDER BY id`, commission.ScoutActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query scouts: %w", err)
	}
	defer rows.Close()

	var scouts []commission.Scout
	for rows.Next() {
		var (
			scout       commission.Scout
			earnings    string
			commissions string
		)
		if err := rows.Scan(&scout.ID, &scout.Name, &scout.Status, &earnings, &commissions); err != nil {
			return nil, fmt.Errorf("failed to scan scout: %w", err)
		}
		scout.LifetimeEarnings = mustDecimal(earnings)
		scout.LifetimeCommissions = mustDecimal(commissions)
		scouts = append(scouts, scout)
	}
	return scouts, rows.Err()
}

func (s *Store) CreditLifetime(ctx context.Context, id commission.ScoutID, earnings, commissions decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return creditLifetime(ctx, s.db, id, earnings, commissions)
}

func creditLifetime(ctx context.Context, db dbtx, id commission.ScoutID, earnings, commissions decimal.Decimal) error {
	// Read-modify-write under the store lock (or enclosing sql.Tx);
	// decimal strings don't add in SQL.
	var curEarnings, curCommissions string
	err := db.QueryRowContext(ctx, `
		SELECT lifetime_earnings, lifetime_commissions FROM scouts WHERE id = ?`, id).
		Scan(&curEarnings, &curCommissions)
	if err == sql.ErrNoRows {
		return commission.ErrScoutNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load scout %s: %w", id, err)
	}

	newEarnings := mustDecimal(curEarnings).Add(earnings)
	newCommissions := mustDecimal(curCommissions).Add(commissions)

	_, err = db.ExecContext(ctx, `
		UPDATE scouts SET lifetime_earnings = ?, lifetime_commissions = ? WHERE id = ?`,
		newEarnings.String(), newCommissions.String(), id)
	if err != nil {
		return fmt.Errorf("failed to credit scout %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// ARTIST REPOSITORY
// =============================================================================

func (s *Store) Artist(ctx context.Context, id commission.ArtistID) (*commission.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getArtist(ctx, s.db, id)
}

func getArtist(ctx context.Context, db dbtx, id commission.ArtistID) (*commission.Artist, error) {
	var (
		artist        commission.Artist
		lastUpgradeAt sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, tier, last_upgrade_at FROM artists WHERE id = ?`, id).
		Scan(&artist.ID, &artist.Name, &artist.Tier, &lastUpgradeAt)
	if err == sql.ErrNoRows {
		return nil, commission.ErrArtistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}

	if lastUpgradeAt.Valid {
		t, err := time.Parse(time.RFC3339, lastUpgradeAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad last_upgrade_at for artist %s: %w", id, err)
		}
		artist.LastUpgradeAt = &t
	}
	return &artist, nil
}

func (s *Store) PaymentsInPeriod(ctx context.Context, id commission.ArtistID, period commission.Period) ([]commission.TierPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paymentsInPeriod(ctx, s.db, id, period)
}

func paymentsInPeriod(ctx context.Context, db dbtx, id commission.ArtistID, period commission.Period) ([]commission.TierPayment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tier, period, created_at FROM tier_payments
		WHERE artist_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`,
		id,
		period.Start().Format(time.RFC3339),
		period.NextStart().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier payments: %w", err)
	}
	defer rows.Close()

	var payments []commission.TierPayment
	for rows.Next() {
		var (
			p         commission.TierPayment
			createdAt string
		)
		if err := rows.Scan(&p.Tier, &p.Period, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tier payment: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("bad created_at in tier payment: %w", err)
		}
		p.CreatedAt = t
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// REFERRAL REPOSITORY
// =============================================================================

func (s *Store) Discovery(ctx context.Context, scoutID commission.ScoutID, artistID commission.ArtistID) (*commission.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDiscovery(ctx, s.db, scoutID, artistID)
}

func getDiscovery(ctx context.Context, db dbtx, scoutID commission.ScoutID, artistID commission.ArtistID) (*commission.Discovery, error) {
	var (
		d           commission.Discovery
		convertedAt sql.NullString
		prepurchase int
	)
	err := db.QueryRowContext(ctx, `
		SELECT scout_id, artist_id, status, converted_at, prepurchase
		FROM discoveries WHERE scout_id = ? AND artist_id = ?`, scoutID, artistID).
		Scan(&d.ScoutID, &d.ArtistID, &d.Status, &convertedAt, &prepurchase)
	if err == sql.ErrNoRows {
		// Missing discovery is a normal non-error outcome.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan discovery: %w", err)
	}

	if err := applyConversion(&d, convertedAt, prepurchase); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) DiscoveriesByScout(ctx context.Context, scoutID commission.ScoutID) ([]commission.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return discoveriesByScout(ctx, s.db, scoutID)
}

func discoveriesByScout(ctx context.Context, db dbtx, scoutID commission.ScoutID) ([]commission.Discovery, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT scout_id, artist_id, status, converted_at, prepurchase
		FROM discoveries WHERE scout_id = ? ORDER BY artist_id`, scoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to query discoveries: %w", err)
	}
	defer rows.Close()

	var discoveries []commission.Discovery
	for rows.Next() {
		var (
			d           commission.Discovery
			convertedAt sql.NullString
			prepurchase int
		)
		if err := rows.Scan(&d.ScoutID, &d.ArtistID, &d.Status, &convertedAt, &prepurchase); err != nil {
			return nil, fmt.Errorf("failed to scan discovery: %w", err)
		}
		if err := applyConversion(&d, convertedAt, prepurchase); err != nil {
			return nil, err
		}
		discoveries = append(discoveries, d)
	}
	return discoveries, rows.Err()
}

func applyConversion(d *commission.Discovery, convertedAt sql.NullString, prepurchase int) error {
	if !convertedAt.Valid {
		d.Conversion = commission.NotConverted()
		return nil
	}
	t, err := time.Parse(time.RFC3339, convertedAt.String)
	if err != nil {
		return fmt.Errorf("bad converted_at for %s/%s: %w", d.ScoutID, d.ArtistID, err)
	}
	d.Conversion = commission.ConvertedAt(t, prepurchase != 0)
	return nil
}

func (s *Store) ListenerReferrals(ctx context.Context, scoutID commission.ScoutID) ([]commission.ListenerReferral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listenerReferrals(ctx, s.db, scoutID)
}

func listenerReferrals(ctx context.Context, db dbtx, scoutID commission.ScoutID) ([]commission.ListenerReferral, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT scout_id, listener_id FROM listener_referrals
		WHERE scout_id = ? ORDER BY listener_id`, scoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listener referrals: %w", err)
	}
	defer rows.Close()

	var referrals []commission.ListenerReferral
	for rows.Next() {
		var r commission.ListenerReferral
		if err := rows.Scan(&r.ScoutID, &r.ListenerID); err != nil {
			return nil, fmt.Errorf("failed to scan listener referral: %w", err)
		}
		referrals = append(referrals, r)
	}
	return referrals, rows.Err()
}

// =============================================================================
// PLAYBACK REPOSITORY
// =============================================================================

func (s *Store) AnyPlaybackBefore(ctx context.Context, listenerIDs []commission.ListenerID, artistID commission.ArtistID, before time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return anyPlaybackBefore(ctx, s.db, listenerIDs, artistID, before)
}

func anyPlaybackBefore(ctx context.Context, db dbtx, listenerIDs []commission.ListenerID, artistID commission.ArtistID, before time.Time) (bool, error) {
	if len(listenerIDs) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(listenerIDs)), ",")
	args := make([]any, 0, len(listenerIDs)+2)
	args = append(args, artistID, before.UTC().Format(time.RFC3339))
	for _, id := range listenerIDs {
		args = append(args, id)
	}

	var found int
	err := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM playbacks
			WHERE artist_id = ? AND played_at < ? AND listener_id IN (%s)
		)`, placeholders), args...).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to query playbacks: %w", err)
	}
	return found != 0, nil
}

// =============================================================================
// COMMISSION REPOSITORY - the ledger
// =============================================================================

const commissionColumns = `
	id, scout_id, artist_id, period, tier, payment_amount, rate, base_amount,
	upgrade_bonus, influence_bonus, bonus_amount, total_amount, months_elapsed,
	status, failure_reason, paid_at, created_at`

func (s *Store) Insert(ctx context.Context, rec commission.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCommission(ctx, s.db, rec)
}

func insertCommission(ctx context.Context, db dbtx, rec commission.CommissionRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO scout_commissions (`+commissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ScoutID, rec.ArtistID, rec.Period, rec.Tier,
		rec.PaymentAmount.String(), rec.Rate.String(), rec.BaseAmount.String(),
		boolInt(rec.UpgradeBonus), boolInt(rec.InfluenceBonus),
		rec.BonusAmount.String(), rec.TotalAmount.String(), rec.MonthsElapsed,
		rec.Status, nullString(rec.FailureReason), nullTime(rec.PaidAt),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return commission.ErrDuplicateCommission
		}
		return fmt.Errorf("failed to insert commission: %w", err)
	}
	return nil
}

func (s *Store) PendingByPeriod(ctx context.Context, period string) ([]commission.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pendingByPeriod(ctx, s.db, period)
}

func pendingByPeriod(ctx context.Context, db dbtx, period string) ([]commission.CommissionRecord, error) {
	return queryCommissions(ctx, db, `
		SELECT `+commissionColumns+`
		FROM scout_commissions
		WHERE period = ? AND status = ?
		ORDER BY scout_id, artist_id`, period, commission.CommissionPending)
}

func (s *Store) ByScout(ctx context.Context, scoutID commission.ScoutID, period string) ([]commission.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byScout(ctx, s.db, scoutID, period)
}

func byScout(ctx context.Context, db dbtx, scoutID commission.ScoutID, period string) ([]commission.CommissionRecord, error) {
	if period == "" {
		return queryCommissions(ctx, db, `
			SELECT `+commissionColumns+`
			FROM scout_commissions
			WHERE scout_id = ?
			ORDER BY period DESC, artist_id`, scoutID)
	}
	return queryCommissions(ctx, db, `
		SELECT `+commissionColumns+`
		FROM scout_commissions
		WHERE scout_id = ? AND period = ?
		ORDER BY artist_id`, scoutID, period)
}

func (s *Store) MarkPaid(ctx context.Context, scoutID commission.ScoutID, period string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markPaid(ctx, s.db, scoutID, period, paidAt)
}

func markPaid(ctx context.Context, db dbtx, scoutID commission.ScoutID, period string, paidAt time.Time) error {
	// PENDING -> PAID only; terminal rows are immutable.
	_, err := db.ExecContext(ctx, `
		UPDATE scout_commissions
		SET status = ?, paid_at = ?
		WHERE scout_id = ? AND period = ? AND status = ?`,
		commission.CommissionPaid, paidAt.UTC().Format(time.RFC3339),
		scoutID, period, commission.CommissionPending)
	if err != nil {
		return fmt.Errorf("failed to mark commissions paid: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, scoutID commission.ScoutID, period string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markFailed(ctx, s.db, scoutID, period, reason)
}

func markFailed(ctx context.Context, db dbtx, scoutID commission.ScoutID, period string, reason string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE scout_commissions
		SET status = ?, failure_reason = ?
		WHERE scout_id = ? AND period = ? AND status = ?`,
		commission.CommissionFailed, reason,
		scoutID, period, commission.CommissionPending)
	if err != nil {
		return fmt.Errorf("failed to mark commissions failed: %w", err)
	}
	return nil
}

func queryCommissions(ctx context.Context, db dbtx, query string, args ...any) ([]commission.CommissionRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commissions: %w", err)
	}
	defer rows.Close()

	var recs []commission.CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanCommission(rows *sql.Rows) (commission.CommissionRecord, error) {
	var (
		rec            commission.CommissionRecord
		paymentAmount  string
		rate           string
		baseAmount     string
		upgradeBonus   int
		influenceBonus int
		bonusAmount    string
		totalAmount    string
		failureReason  sql.NullString
		paidAt         sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&rec.ID, &rec.ScoutID, &rec.ArtistID, &rec.Period, &rec.Tier,
		&paymentAmount, &rate, &baseAmount,
		&upgradeBonus, &influenceBonus, &bonusAmount, &totalAmount,
		&rec.MonthsElapsed, &rec.Status, &failureReason, &paidAt, &createdAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan commission: %w", err)
	}

	rec.PaymentAmount = mustDecimal(paymentAmount)
	rec.Rate = mustDecimal(rate)
	rec.BaseAmount = mustDecimal(baseAmount)
	rec.BonusAmount = mustDecimal(bonusAmount)
	rec.TotalAmount = mustDecimal(totalAmount)
	rec.UpgradeBonus = upgradeBonus != 0
	rec.InfluenceBonus = influenceBonus != 0
	rec.FailureReason = failureReason.String

	if paidAt.Valid {
		if t, err := time.Parse(time.RFC3339, paidAt.String); err == nil {
			rec.PaidAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

// =============================================================================
// RUN REPOSITORY
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run commission.SettlementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRun(ctx, s.db, run)
}

func saveRun(ctx context.Context, db dbtx, run commission.SettlementRun) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settlement_runs
		(id, period, status, total_paid, payout_count, failed_count, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_paid = excluded.total_paid,
			payout_count = excluded.payout_count,
			failed_count = excluded.failed_count,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, run.Period, run.Status, run.TotalPaid.String(),
		run.PayoutCount, run.FailedCount, nullString(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339), nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement run: %w", err)
	}
	return nil
}

func (s *Store) CompletedRun(ctx context.Context, period string) (*commission.SettlementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return completedRun(ctx, s.db, period)
}

func completedRun(ctx context.Context, db dbtx, period string) (*commission.SettlementRun, error) {
	var (
		run         commission.SettlementRun
		totalPaid   string
		runErr      sql.NullString
		startedAt   string
		completedAt sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, period, status, total_paid, payout_count, failed_count, error, started_at, completed_at
		FROM settlement_runs
		WHERE period = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`, period, commission.RunCompleted).
		Scan(&run.ID, &run.Period, &run.Status, &totalPaid,
			&run.PayoutCount, &run.FailedCount, &runErr, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan settlement run: %w", err)
	}

	run.TotalPaid = mustDecimal(totalPaid)
	run.Error = runErr.String
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			run.CompletedAt = &t
		}
	}
	return &run, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store passed
// to fn runs every operation through the same sql.Tx; the transaction
// commits only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(commission.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore implements commission.Store on top of an open sql.Tx.
// It holds no lock of its own - WithTx holds the parent's write lock
// for the duration of the transaction.
type txStore struct {
	tx *sql.Tx
}

var _ commission.Store = (*txStore)(nil)

func (ts *txStore) Scout(ctx context.Context, id commission.ScoutID) (*commission.Scout, error) {
	return getScout(ctx, ts.tx, id)
}

func (ts *txStore) ActiveScouts(ctx context.Context) ([]commission.Scout, error) {
	return activeScouts(ctx, ts.tx)
}

func (ts *txStore) CreditLifetime(ctx context.Context, id commission.ScoutID, earnings, commissions decimal.Decimal) error {
	return creditLifetime(ctx, ts.tx, id, earnings, commissions)
}

func (ts *txStore) Artist(ctx context.Context, id commission.ArtistID) (*commission.Artist, error) {
	return getArtist(ctx, ts.tx, id)
}

func (ts *txStore) PaymentsInPeriod(ctx context.Context, id commission.ArtistID, period commission.Period) ([]commission.TierPayment, error) {
	return paymentsInPeriod(ctx, ts.tx, id, period)
}

func (ts *txStore) Discovery(ctx context.Context, scoutID commission.ScoutID, artistID commission.ArtistID) (*commission.Discovery, error) {
	return getDiscovery(ctx, ts.tx, scoutID, artistID)
}

func (ts *txStore) DiscoveriesByScout(ctx context.Context, scoutID commission.ScoutID) ([]commission.Discovery, error) {
	return discoveriesByScout(ctx, ts.tx, scoutID)
}

func (ts *txStore) ListenerReferrals(ctx context.Context, scoutID commission.ScoutID) ([]commission.ListenerReferral, error) {
	return listenerReferrals(ctx, ts.tx, scoutID)
}

func (ts *txStore) AnyPlaybackBefore(ctx context.Context, listenerIDs []commission.ListenerID, artistID commission.ArtistID, before time.Time) (bool, error) {
	return anyPlaybackBefore(ctx, ts.tx, listenerIDs, artistID, before)
}

func (ts *txStore) Insert(ctx context.Context, rec commission.CommissionRecord) error {
	return insertCommission(ctx, ts.tx, rec)
}

func (ts *txStore) PendingByPeriod(ctx context.Context, period string) ([]commission.CommissionRecord, error) {
	return pendingByPeriod(ctx, ts.tx, period)
}

func (ts *txStore) ByScout(ctx context.Context, scoutID commission.ScoutID, period string) ([]commission.CommissionRecord, error) {
	return byScout(ctx, ts.tx, scoutID, period)
}

func (ts *txStore) MarkPaid(ctx context.Context, scoutID commission.ScoutID, period string, paidAt time.Time) error {
	return markPaid(ctx, ts.tx, scoutID, period, paidAt)
}

func (ts *txStore) MarkFailed(ctx context.Context, scoutID commission.ScoutID, period string, reason string) error {
	return markFailed(ctx, ts.tx, scoutID, period, reason)
}

func (ts *txStore) SaveRun(ctx context.Context, run commission.SettlementRun) error {
	return saveRun(ctx, ts.tx, run)
}

func (ts *txStore) CompletedRun(ctx context.Context, period string) (*commission.SettlementRun, error) {
	return completedRun(ctx, ts.tx, period)
}

// Nested transactions flatten into the enclosing one.
func (ts *txStore) WithTx(ctx context.Context, fn func(commission.Store) error) error {
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
