package journal

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"loyaltyledger/core/events"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	j, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func appendSamples(t *testing.T, j *Journal) {
	t.Helper()
	ctx := context.Background()
	samples := []events.Event{
		events.LoyaltyBusinessRegistered{Business: "acme"},
		events.LoyaltyTokensMinted{Business: "acme", Recipient: "alice", Amount: big.NewInt(100)},
		events.LoyaltyTokensStaked{User: "alice", Amount: big.NewInt(50), TotalStaked: big.NewInt(50), StartMillis: 1},
		events.LoyaltyTierMultiplier{Tier: 2, Multiplier: 150},
	}
	for _, evt := range samples {
		_, err := j.Append(ctx, evt)
		require.NoError(t, err)
	}
}

func TestAppendBuildsChain(t *testing.T) {
	j := setupTestJournal(t)
	appendSamples(t, j)

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, int64(4), entries[0].Sequence)
	require.Equal(t, "tier:2", entries[0].Subject)
	require.Equal(t, entries[1].Digest, entries[0].PrevDigest)
	require.Equal(t, "alice", entries[2].Subject)
	require.Empty(t, entries[3].PrevDigest)

	checked, err := j.Verify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, checked)
}

func TestVerifyDetectsTampering(t *testing.T) {
	j := setupTestJournal(t)
	appendSamples(t, j)

	err := j.db.Model(&Entry{}).Where("sequence = ?", 2).
		Update("attributes", `{"amount":"1000000","business":"acme","recipient":"alice"}`).Error
	require.NoError(t, err)

	checked, err := j.Verify(context.Background())
	require.ErrorIs(t, err, ErrChainBroken)
	require.Equal(t, 1, checked)
}

func TestReopenContinuesChain(t *testing.T) {
	j := setupTestJournal(t)
	appendSamples(t, j)

	reopened, err := New(j.db)
	require.NoError(t, err)
	entry, err := reopened.Append(context.Background(), events.LoyaltyTokensRedeemed{User: "alice", Amount: big.NewInt(1)})
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.Sequence)

	checked, err := reopened.Verify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, checked)
}

func TestEmitAndNilEvent(t *testing.T) {
	j := setupTestJournal(t)
	j.Emit(events.LoyaltyTokensRedeemed{User: "bob", Amount: big.NewInt(3)})
	_, err := j.Append(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilEvent)

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, events.TypeLoyaltyTokensRedeemed, entries[0].Type)
}

func TestExportParquet(t *testing.T) {
	j := setupTestJournal(t)
	appendSamples(t, j)

	path := filepath.Join(t.TempDir(), "journal.parquet")
	written, err := j.ExportParquet(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 4, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
	require.True(t, isPostgres("postgresql://loyalty@db/journal"))
	require.False(t, isPostgres("file::memory:"))
}
