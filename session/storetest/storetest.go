// Package storetest provides a behavioral suite shared by every session.Store backend.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goRotate/session"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) session.Store

// NewRecord builds an active record with a random token hash.
func NewRecord(userID, familyID string, version uint32) *session.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &session.Record{
		TokenHash: session.HashToken(uuid.NewString()),
		UserID:    userID,
		FamilyID:  familyID,
		Version:   version,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

// Run executes the suite against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetByHash(context.Background(), session.HashToken("missing"))
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("InsertThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord("u1", uuid.NewString(), 4)
		require.NoError(t, s.Insert(ctx, rec))

		got, err := s.GetByHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		require.Equal(t, rec.TokenHash, got.TokenHash)
		require.Equal(t, rec.UserID, got.UserID)
		require.Equal(t, rec.FamilyID, got.FamilyID)
		require.Equal(t, rec.Version, got.Version)
		require.False(t, got.Revoked)
		require.Equal(t, rec.IssuedAt.Unix(), got.IssuedAt.Unix())
		require.Equal(t, rec.ExpiresAt.Unix(), got.ExpiresAt.Unix())
	})

	t.Run("InsertDuplicateHash", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord("u1", uuid.NewString(), 0)
		require.NoError(t, s.Insert(ctx, rec))
		require.ErrorIs(t, s.Insert(ctx, rec), session.ErrDuplicate)
	})

	t.Run("InsertRejectsIncompleteRecord", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("u1", "", 0)
		require.ErrorIs(t, s.Insert(context.Background(), rec), session.ErrInvalidRecord)
	})

	t.Run("MarkRevokedIfActiveTransitionsOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord("u1", uuid.NewString(), 0)
		require.NoError(t, s.Insert(ctx, rec))

		ok, err := s.MarkRevokedIfActive(ctx, rec.TokenHash)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.MarkRevokedIfActive(ctx, rec.TokenHash)
		require.NoError(t, err)
		require.False(t, ok)

		got, err := s.GetByHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		require.True(t, got.Revoked)

		ok, err = s.MarkRevokedIfActive(ctx, session.HashToken("missing"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("MarkRevokedIfActiveSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord("u1", uuid.NewString(), 0)
		require.NoError(t, s.Insert(ctx, rec))

		const workers = 24
		var (
			wins  atomic.Int32
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make(chan error, workers)
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := s.MarkRevokedIfActive(ctx, rec.TokenHash)
				if err != nil {
					errs <- err
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("RevokeFamilyCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		family := uuid.NewString()
		other := NewRecord("u1", uuid.NewString(), 0)
		v0 := NewRecord("u1", family, 0)
		v1 := NewRecord("u1", family, 1)
		for _, r := range []*session.Record{other, v0, v1} {
			require.NoError(t, s.Insert(ctx, r))
		}
		_, err := s.MarkRevokedIfActive(ctx, v0.TokenHash)
		require.NoError(t, err)

		n, err := s.RevokeFamily(ctx, family)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		for _, r := range []*session.Record{v0, v1} {
			got, err := s.GetByHash(ctx, r.TokenHash)
			require.NoError(t, err)
			require.True(t, got.Revoked, "version %d should be revoked", r.Version)
		}
		got, err := s.GetByHash(ctx, other.TokenHash)
		require.NoError(t, err)
		require.False(t, got.Revoked)

		ok, err := s.MarkRevokedIfActive(ctx, v1.TokenHash)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("InsertIntoRevokedFamilyIsBornRevoked", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		family := uuid.NewString()
		v0 := NewRecord("u1", family, 0)
		require.NoError(t, s.Insert(ctx, v0))
		_, err := s.RevokeFamily(ctx, family)
		require.NoError(t, err)

		late := NewRecord("u1", family, 1)
		require.NoError(t, s.Insert(ctx, late))

		got, err := s.GetByHash(ctx, late.TokenHash)
		require.NoError(t, err)
		require.True(t, got.Revoked)

		ok, err := s.MarkRevokedIfActive(ctx, late.TokenHash)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("RevokeAllForUser", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mine := []*session.Record{
			NewRecord("u1", uuid.NewString(), 0),
			NewRecord("u1", uuid.NewString(), 0),
		}
		theirs := NewRecord("u2", uuid.NewString(), 0)
		for _, r := range append(mine, theirs) {
			require.NoError(t, s.Insert(ctx, r))
		}

		n, err := s.RevokeAllForUser(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 2, n)

		for _, r := range mine {
			got, err := s.GetByHash(ctx, r.TokenHash)
			require.NoError(t, err)
			require.True(t, got.Revoked)
		}
		got, err := s.GetByHash(ctx, theirs.TokenHash)
		require.NoError(t, err)
		require.False(t, got.Revoked)

		n, err = s.RevokeAllForUser(ctx, "nobody")
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("DeleteByHashIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord("u1", uuid.NewString(), 0)
		require.NoError(t, s.Insert(ctx, rec))

		require.NoError(t, s.DeleteByHash(ctx, rec.TokenHash))
		require.NoError(t, s.DeleteByHash(ctx, rec.TokenHash))
		_, err := s.GetByHash(ctx, rec.TokenHash)
		require.ErrorIs(t, err, session.ErrNotFound)
	})
}
