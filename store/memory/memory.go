// Package memory provides an in-memory commission.Store for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu sync.RWMutex

	scouts      map[commission.ScoutID]commission.Scout
	artists     map[commission.ArtistID]commission.Artist
	discoveries map[discoveryKey]commission.Discovery
	referrals   map[commission.ScoutID][]commission.ListenerReferral
	playbacks   []commission.Playback
	commissions map[commissionKey]commission.CommissionRecord
	runs        []commission.SettlementRun
}

type discoveryKey struct {
	ScoutID  commission.ScoutID
	ArtistID commission.ArtistID
}

type commissionKey struct {
	ScoutID  commission.ScoutID
	ArtistID commission.ArtistID
	Period   string
}

func New() *Store {
	return &Store{
		scouts:      make(map[commission.ScoutID]commission.Scout),
		artists:     make(map[commission.ArtistID]commission.Artist),
		discoveries: make(map[discoveryKey]commission.Discovery),
		referrals:   make(map[commission.ScoutID][]commission.ListenerReferral),
		commissions: make(map[commissionKey]commission.CommissionRecord),
	}
}

var _ commission.Store = (*Store)(nil)

// =============================================================================
// SEEDING - Test/dev data setup
// =============================================================================

func (s *Store) SaveScout(_ context.Context, scout commission.Scout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scouts[scout.ID] = scout
	return nil
}

func (s *Store) SaveArtist(_ context.Context, artist commission.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artists[artist.ID] = artist
	return nil
}

func (s *Store) SaveDiscovery(_ context.Context, d commission.Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveries[discoveryKey{d.ScoutID, d.ArtistID}] = d
	return nil
}

func (s *Store) AddListenerReferral(_ context.Context, r commission.ListenerReferral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrals[r.ScoutID] = append(s.referrals[r.ScoutID], r)
	return nil
}

func (s *Store) AddPlayback(_ context.Context, p commission.Playback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playbacks = append(s.playbacks, p)
	return nil
}

// =============================================================================
// SCOUT REPOSITORY
// =============================================================================

func (s *Store) Scout(_ context.Context, id commission.ScoutID) (*commission.Scout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scout, ok := s.scouts[id]
	if !ok {
		return nil, commission.ErrScoutNotFound
	}
	return &scout, nil
}

func (s *Store) ActiveScouts(_ context.Context) ([]commission.Scout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []commission.Scout
	for _, scout := range s.scouts {
		if scout.IsActive() {
			result = append(result, scout)
		}
	}
	// Deterministic order for batch runs and tests.
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) CreditLifetime(_ context.Context, id commission.ScoutID, earnings, commissions decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scout, ok := s.scouts[id]
	if !ok {
		return commission.ErrScoutNotFound
	}
	scout.LifetimeEarnings = scout.LifetimeEarnings.Add(earnings)
	scout.LifetimeCommissions = scout.LifetimeCommissions.Add(commissions)
	s.scouts[id] = scout
	return nil
}

// =============================================================================
// ARTIST REPOSITORY
// =============================================================================

func (s *Store) Artist(_ context.Context, id commission.ArtistID) (*commission.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artist, ok := s.artists[id]
	if !ok {
		return nil, commission.ErrArtistNotFound
	}
	// Return without payment history; PaymentsInPeriod serves that.
	a := artist
	a.Payments = nil
	return &a, nil
}

func (s *Store) PaymentsInPeriod(_ context.Context, id commission.ArtistID, period commission.Period) ([]commission.TierPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artist, ok := s.artists[id]
	if !ok {
		return nil, commission.ErrArtistNotFound
	}

	var result []commission.TierPayment
	for _, p := range artist.Payments {
		if period.Contains(p.CreatedAt) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// REFERRAL REPOSITORY
// =============================================================================

func (s *Store) Discovery(_ context.Context, scoutID commission.ScoutID, artistID commission.ArtistID) (*commission.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.discoveries[discoveryKey{scoutID, artistID}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) DiscoveriesByScout(_ context.Context, scoutID commission.ScoutID) ([]commission.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []commission.Discovery
	for key, d := range s.discoveries {
		if key.ScoutID == scoutID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ArtistID < result[j].ArtistID })
	return result, nil
}

func (s *Store) ListenerReferrals(_ context.Context, scoutID commission.ScoutID) ([]commission.ListenerReferral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]commission.ListenerReferral, len(s.referrals[scoutID]))
	copy(result, s.referrals[scoutID])
	return result, nil
}

// =============================================================================
// PLAYBACK REPOSITORY
// =============================================================================

func (s *Store) AnyPlaybackBefore(_ context.Context, listenerIDs []commission.ListenerID, artistID commission.ArtistID, before time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listeners := make(map[commission.ListenerID]bool, len(listenerIDs))
	for _, id := range listenerIDs {
		listeners[id] = true
	}

	for _, p := range s.playbacks {
		if p.ArtistID == artistID && listeners[p.ListenerID] && p.PlayedAt.Before(before) {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// COMMISSION REPOSITORY - Uniqueness enforced on the composite key
// =============================================================================

func (s *Store) Insert(_ context.Context, rec commission.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *Store) insertLocked(rec commission.CommissionRecord) error {
	key := commissionKey{rec.ScoutID, rec.ArtistID, rec.Period}
	if _, exists := s.commissions[key]; exists {
		return commission.ErrDuplicateCommission
	}
	s.commissions[key] = rec
	return nil
}

func (s *Store) PendingByPeriod(_ context.Context, period string) ([]commission.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []commission.CommissionRecord
	for key, rec := range s.commissions {
		if key.Period == period && rec.Status == commission.CommissionPending {
			result = append(result, rec)
		}
	}
	sortRecords(result)
	return result, nil
}

func (s *Store) ByScout(_ context.Context, scoutID commission.ScoutID, period string) ([]commission.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []commission.CommissionRecord
	for key, rec := range s.commissions {
		if key.ScoutID != scoutID {
			continue
		}
		if period != "" && key.Period != period {
			continue
		}
		result = append(result, rec)
	}
	sortRecords(result)
	return result, nil
}

func (s *Store) MarkPaid(_ context.Context, scoutID commission.ScoutID, period string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, rec := range s.commissions {
		if key.ScoutID == scoutID && key.Period == period && rec.Status == commission.CommissionPending {
			at := paidAt.UTC()
			rec.Status = commission.CommissionPaid
			rec.PaidAt = &at
			s.commissions[key] = rec
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, scoutID commission.ScoutID, period string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, rec := range s.commissions {
		if key.ScoutID == scoutID && key.Period == period && rec.Status == commission.CommissionPending {
			rec.Status = commission.CommissionFailed
			rec.FailureReason = reason
			s.commissions[key] = rec
		}
	}
	return nil
}

func sortRecords(recs []commission.CommissionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Period != recs[j].Period {
			return recs[i].Period < recs[j].Period
		}
		if recs[i].ScoutID != recs[j].ScoutID {
			return recs[i].ScoutID < recs[j].ScoutID
		}
		return recs[i].ArtistID < recs[j].ArtistID
	})
}

// =============================================================================
// RUN REPOSITORY
// =============================================================================

func (s *Store) SaveRun(_ context.Context, run commission.SettlementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.runs {
		if existing.ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) CompletedRun(_ context.Context, period string) (*commission.SettlementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Period == period && s.runs[i].Status == commission.RunCompleted {
			run := s.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

// =============================================================================
// TRANSACTIONS - Simulated with snapshot + rollback on error
// =============================================================================

func (s *Store) WithTx(_ context.Context, fn func(commission.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(&txView{parent: s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	scouts      map[commission.ScoutID]commission.Scout
	commissions map[commissionKey]commission.CommissionRecord
}

func (s *Store) snapshotLocked() memorySnapshot {
	scouts := make(map[commission.ScoutID]commission.Scout, len(s.scouts))
	for k, v := range s.scouts {
		scouts[k] = v
	}
	commissions := make(map[commissionKey]commission.CommissionRecord, len(s.commissions))
	for k, v := range s.commissions {
		commissions[k] = v
	}
	return memorySnapshot{scouts: scouts, commissions: commissions}
}

func (s *Store) restoreLocked(snap memorySnapshot) {
	s.scouts = snap.scouts
	s.commissions = snap.commissions
}

// txView exposes the parent's state without re-locking. Only the writes
// settlement performs inside a transaction are supported unlocked; reads
// pass through the parent's data directly.
type txView struct {
	parent *Store
}

var _ commission.Store = (*txView)(nil)

func (v *txView) Scout(_ context.Context, id commission.ScoutID) (*commission.Scout, error) {
	scout, ok := v.parent.scouts[id]
	if !ok {
		return nil, commission.ErrScoutNotFound
	}
	return &scout, nil
}

func (v *txView) ActiveScouts(ctx context.Context) ([]commission.Scout, error) {
	var result []commission.Scout
	for _, scout := range v.parent.scouts {
		if scout.IsActive() {
			result = append(result, scout)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *txView) CreditLifetime(_ context.Context, id commission.ScoutID, earnings, commissions decimal.Decimal) error {
	scout, ok := v.parent.scouts[id]
	if !ok {
		return commission.ErrScoutNotFound
	}
	scout.LifetimeEarnings = scout.LifetimeEarnings.Add(earnings)
	scout.LifetimeCommissions = scout.LifetimeCommissions.Add(commissions)
	v.parent.scouts[id] = scout
	return nil
}

func (v *txView) Artist(ctx context.Context, id commission.ArtistID) (*commission.Artist, error) {
	artist, ok := v.parent.artists[id]
	if !ok {
		return nil, commission.ErrArtistNotFound
	}
	a := artist
	a.Payments = nil
	return &a, nil
}

func (v *txView) PaymentsInPeriod(ctx context.Context, id commission.ArtistID, period commission.Period) ([]commission.TierPayment, error) {
	artist, ok := v.parent.artists[id]
	if !ok {
		return nil, commission.ErrArtistNotFound
	}
	var result []commission.TierPayment
	for _, p := range artist.Payments {
		if period.Contains(p.CreatedAt) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (v *txView) Discovery(ctx context.Context, scoutID commission.ScoutID, artistID commission.ArtistID) (*commission.Discovery, error) {
	d, ok := v.parent.discoveries[discoveryKey{scoutID, artistID}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (v *txView) DiscoveriesByScout(ctx context.Context, scoutID commission.ScoutID) ([]commission.Discovery, error) {
	var result []commission.Discovery
	for key, d := range v.parent.discoveries {
		if key.ScoutID == scoutID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (v *txView) ListenerReferrals(ctx context.Context, scoutID commission.ScoutID) ([]commission.ListenerReferral, error) {
	return v.parent.referrals[scoutID], nil
}

func (v *txView) AnyPlaybackBefore(ctx context.Context, listenerIDs []commission.ListenerID, artistID commission.ArtistID, before time.Time) (bool, error) {
	listeners := make(map[commission.ListenerID]bool, len(listenerIDs))
	for _, id := range listenerIDs {
		listeners[id] = true
	}
	for _, p := range v.parent.playbacks {
		if p.ArtistID == artistID && listeners[p.ListenerID] && p.PlayedAt.Before(before) {
			return true, nil
		}
	}
	return false, nil
}

func (v *txView) Insert(_ context.Context, rec commission.CommissionRecord) error {
	return v.parent.insertLocked(rec)
}

func (v *txView) PendingByPeriod(ctx context.Context, period string) ([]commission.CommissionRecord, error) {
	var result []commission.CommissionRecord
	for key, rec := range v.parent.commissions {
		if key.Period == period && rec.Status == commission.CommissionPending {
			result = append(result, rec)
		}
	}
	sortRecords(result)
	return result, nil
}

func (v *txView) ByScout(ctx context.Context, scoutID commission.ScoutID, period string) ([]commission.CommissionRecord, error) {
	var result []commission.CommissionRecord
	for key, rec := range v.parent.commissions {
		if key.ScoutID != scoutID {
			continue
		}
		if period != "" && key.Period != period {
			continue
		}
		result = append(result, rec)
	}
	sortRecords(result)
	return result, nil
}

func (v *txView) MarkPaid(_ context.Context, scoutID commission.ScoutID, period string, paidAt time.Time) error {
	for key, rec := range v.parent.commissions {
		if key.ScoutID == scoutID && key.Period == period && rec.Status == commission.CommissionPending {
			at := paidAt.UTC()
			rec.Status = commission.CommissionPaid
			rec.PaidAt = &at
			v.parent.commissions[key] = rec
		}
	}
	return nil
}

func (v *txView) MarkFailed(_ context.Context, scoutID commission.ScoutID, period string, reason string) error {
	for key, rec := range v.parent.commissions {
		if key.ScoutID == scoutID && key.Period == period && rec.Status == commission.CommissionPending {
			rec.Status = commission.CommissionFailed
			rec.FailureReason = reason
			v.parent.commissions[key] = rec
		}
	}
	return nil
}

func (v *txView) SaveRun(_ context.Context, run commission.SettlementRun) error {
	for i, existing := range v.parent.runs {
		if existing.ID == run.ID {
			v.parent.runs[i] = run
			return nil
		}
	}
	v.parent.runs = append(v.parent.runs, run)
	return nil
}

func (v *txView) CompletedRun(_ context.Context, period string) (*commission.SettlementRun, error) {
	for i := len(v.parent.runs) - 1; i >= 0; i-- {
		if v.parent.runs[i].Period == period && v.parent.runs[i].Status == commission.RunCompleted {
			run := v.parent.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

// WithTx on a view runs fn against the same view; memory transactions
// don't nest.
func (v *txView) WithTx(_ context.Context, fn func(commission.Store) error) error {
	return fn(v)
}
