// Package memory provides in-process implementations of the session, order
// and table repositories. A single mutex serializes every operation, which
// gives the same single-document atomicity the document database provides.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/repository"
)

// Store holds all collections.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	orders   []*domain.Order
	tables   map[string]*domain.Table
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		tables:   make(map[string]*domain.Table),
	}
}

// Sessions returns the sessions repository backed by s.
func (s *Store) Sessions() *SessionsRepository { return &SessionsRepository{s: s} }

// Orders returns the orders repository backed by s.
func (s *Store) Orders() *OrdersRepository { return &OrdersRepository{s: s} }

// Tables returns the tables repository backed by s.
func (s *Store) Tables() *TablesRepository { return &TablesRepository{s: s} }

// SessionsRepository is the in-memory sessions collection.
type SessionsRepository struct {
	s *Store
}

func (r *SessionsRepository) Create(_ context.Context, session *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (r *SessionsRepository) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (r *SessionsRepository) GetActive(_ context.Context, sessionID string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok || sess.Status != domain.SessionActive {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (r *SessionsRepository) MarkExpired(_ context.Context, sessionID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[sessionID]; ok && sess.Status == domain.SessionActive {
		sess.Status = domain.SessionExpired
		sess.UpdatedAt = now
	}
	return nil
}

func (r *SessionsRepository) TouchDevice(_ context.Context, sessionID, fingerprint string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	for i := range sess.Devices {
		if sess.Devices[i].Fingerprint == fingerprint {
			sess.Devices[i].LastSeen = now
			sess.LastActivity = now
			sess.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (r *SessionsRepository) AddDevice(_ context.Context, sessionID string, device domain.Device, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok || sess.HasDevice(device.Fingerprint) {
		return false, nil
	}
	sess.Devices = append(sess.Devices, device)
	sess.TotalDevices++
	sess.LastActivity = now
	sess.UpdatedAt = now
	return true, nil
}

func (r *SessionsRepository) GetTotalDevices(_ context.Context, sessionID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	return sess.TotalDevices, nil
}

func (r *SessionsRepository) AutoFlag(_ context.Context, sessionID, reason string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.Flags.IsSuspicious = true
	sess.Flags.AutoFlagged = true
	sess.Flags.FlaggedAt = timePtr(now)
	sess.UpdatedAt = now
	for _, existing := range sess.Flags.Reasons {
		if existing == reason {
			return nil
		}
	}
	sess.Flags.Reasons = append(sess.Flags.Reasons, reason)
	return nil
}

func (r *SessionsRepository) TouchActivity(_ context.Context, sessionID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[sessionID]; ok {
		sess.LastActivity = now
		sess.UpdatedAt = now
	}
	return nil
}

func (r *SessionsRepository) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sess := range r.s.sessions {
		if sess.Status == domain.SessionActive && sess.ExpiryTime.Before(now) {
			sess.Status = domain.SessionExpired
			sess.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *SessionsRepository) RecordOrder(_ context.Context, sessionID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[sessionID]; ok {
		sess.OrderCount++
		sess.LastOrderTime = timePtr(now)
		sess.UpdatedAt = now
	}
	return nil
}

func (r *SessionsRepository) AddOrderAmount(_ context.Context, sessionID, fingerprint string, amount float64, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return nil
	}
	for i := range sess.Devices {
		if sess.Devices[i].Fingerprint == fingerprint {
			sess.Devices[i].OrderCount++
			sess.Devices[i].LastSeen = now
			break
		}
	}
	sess.TotalAmount += amount
	sess.LastActivity = now
	sess.UpdatedAt = now
	return nil
}

func (r *SessionsRepository) Close(_ context.Context, sessionID, reason, closedBy string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Status = domain.SessionClosed
	sess.ClosedAt = timePtr(now)
	sess.ClosedReason = reason
	sess.ClosedBy = closedBy
	sess.UpdatedAt = now
	return nil
}

func (r *SessionsRepository) Flag(_ context.Context, sessionID, reason, flaggedBy string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Flags.IsSuspicious = true
	sess.Flags.ManuallyFlagged = true
	sess.Flags.FlaggedAt = timePtr(now)
	sess.Flags.FlaggedBy = flaggedBy
	sess.Flags.Reasons = append(sess.Flags.Reasons, reason)
	sess.UpdatedAt = now
	return nil
}

func (r *SessionsRepository) Unflag(_ context.Context, sessionID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Flags.IsSuspicious = false
	sess.Flags.ManuallyFlagged = false
	sess.UpdatedAt = now
	return nil
}

func (r *SessionsRepository) List(_ context.Context, q repository.SessionQuery) ([]*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Session
	for _, sess := range r.s.sessions {
		if matches(sess, q) {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(sess *domain.Session, q repository.SessionQuery) bool {
	if q.Status != nil && sess.Status != *q.Status {
		return false
	}
	if q.ValidAt != nil && sess.ExpiryTime.Before(*q.ValidAt) {
		return false
	}
	if q.ExpiredBy != nil && !sess.ExpiryTime.Before(*q.ExpiredBy) {
		return false
	}
	if q.Suspicious != nil && sess.Flags.IsSuspicious != *q.Suspicious {
		return false
	}
	if q.TableNumber != nil && sess.TableNumber != *q.TableNumber {
		return false
	}
	return true
}

// OrdersRepository is the in-memory orders collection.
type OrdersRepository struct {
	s *Store
}

func (r *OrdersRepository) Create(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o := *order
	o.Items = append([]domain.OrderItem(nil), order.Items...)
	r.s.orders = append(r.s.orders, &o)
	return nil
}

func (r *OrdersRepository) CountSince(_ context.Context, sessionID string, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, o := range r.s.orders {
		if o.SessionID == sessionID && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *OrdersRepository) CountByDeviceSince(_ context.Context, sessionID, fingerprint string, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, o := range r.s.orders {
		if o.SessionID == sessionID && o.DeviceFingerprint == fingerprint && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *OrdersRepository) OldestSince(_ context.Context, sessionID string, since time.Time) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *domain.Order
	for _, o := range r.s.orders {
		if o.SessionID != sessionID || o.CreatedAt.Before(since) {
			continue
		}
		if oldest == nil || o.CreatedAt.Before(oldest.CreatedAt) {
			oldest = o
		}
	}
	if oldest == nil {
		return nil, nil
	}
	o := *oldest
	return &o, nil
}

func (r *OrdersRepository) ListBySession(_ context.Context, sessionID string) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.s.orders {
		if o.SessionID == sessionID {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// TablesRepository is the in-memory tables collection.
type TablesRepository struct {
	s *Store
}

func (r *TablesRepository) Create(_ context.Context, table *domain.Table) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.tables {
		if id == table.ID || t.TableNumber == table.TableNumber {
			return domain.ErrTableExists
		}
	}
	t := *table
	r.s.tables[t.ID] = &t
	return nil
}

func (r *TablesRepository) Get(_ context.Context, tableID string) (*domain.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tables[tableID]
	if !ok {
		return nil, domain.ErrTableNotFound
	}
	c := *t
	return &c, nil
}

func (r *TablesRepository) GetByNumber(_ context.Context, number int) (*domain.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tables {
		if t.TableNumber == number {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrTableNotFound
}

func (r *TablesRepository) AssignSession(_ context.Context, tableID, sessionID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tables[tableID]
	if !ok {
		return domain.ErrTableNotFound
	}
	t.CurrentSessionID = sessionID
	t.Status = domain.TableOccupied
	t.UpdatedAt = now
	return nil
}

func (r *TablesRepository) ReleaseSession(_ context.Context, tableID, sessionID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tables[tableID]; ok && t.CurrentSessionID == sessionID {
		t.CurrentSessionID = ""
		t.Status = domain.TableAvailable
		t.UpdatedAt = now
	}
	return nil
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Devices = append([]domain.Device(nil), s.Devices...)
	c.Flags.Reasons = append([]string(nil), s.Flags.Reasons...)
	if c.Devices == nil {
		c.Devices = []domain.Device{}
	}
	if c.Flags.Reasons == nil {
		c.Flags.Reasons = []string{}
	}
	return &c
}

func timePtr(t time.Time) *time.Time {
	return &t
}
