package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process [Store]. All operations hold one mutex, which
// makes MarkRevokedIfActive and the family cascade trivially atomic. It keeps
// records until DeleteByHash and is meant for tests and single-node tools.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]*Record
	families   map[string]map[string]struct{}
	users      map[string]map[string]struct{}
	tombstones map[string]struct{}
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*Record),
		families:   make(map[string]map[string]struct{}),
		users:      make(map[string]map[string]struct{}),
		tombstones: make(map[string]struct{}),
	}
}

// GetByHash returns a copy of the stored record.
func (m *MemoryStore) GetByHash(ctx context.Context, hash string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// Insert stores a copy of rec; records joining a tombstoned family are stored revoked.
func (m *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.TokenHash]; exists {
		return ErrDuplicate
	}
	stored := rec.clone()
	if _, dead := m.tombstones[stored.FamilyID]; dead {
		stored.Revoked = true
	}
	m.records[stored.TokenHash] = stored
	addToIndex(m.families, stored.FamilyID, stored.TokenHash)
	addToIndex(m.users, stored.UserID, stored.FamilyID)
	return nil
}

// MarkRevokedIfActive reports whether this call performed the transition.
func (m *MemoryStore) MarkRevokedIfActive(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[hash]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

// RevokeFamily tombstones familyID and revokes its records.
func (m *MemoryStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.revokeFamilyLocked(familyID), nil
}

// RevokeAllForUser revokes every family indexed for userID.
func (m *MemoryStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for familyID := range m.users[userID] {
		total += m.revokeFamilyLocked(familyID)
	}
	return total, nil
}

// DeleteByHash removes the record if present.
func (m *MemoryStore) DeleteByHash(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[hash]
	if !ok {
		return nil
	}
	delete(m.records, hash)
	if members, ok := m.families[rec.FamilyID]; ok {
		delete(members, hash)
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryStore) revokeFamilyLocked(familyID string) int {
	m.tombstones[familyID] = struct{}{}
	count := 0
	for hash := range m.families[familyID] {
		rec, ok := m.records[hash]
		if !ok || rec.Revoked {
			continue
		}
		rec.Revoked = true
		count++
	}
	return count
}

func addToIndex(index map[string]map[string]struct{}, key, member string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[member] = struct{}{}
}
