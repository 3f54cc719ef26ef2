package identity

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"CollectiveLedger/internal/domain"
)

func TestRoster(t *testing.T) {
	t.Parallel()

	roster, err := NewRoster([]domain.Identity{
		{ID: 9, Address: "0x2222222222222222222222222222222222222222", Handle: "eli"},
		{ID: 3, Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", Handle: "dana"},
	})
	require.NoError(t, err)

	ctx := context.Background()
	got, err := roster.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "dana", got.Handle)
	require.Equal(t, common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd").Hex(), got.Address)

	_, err = roster.Resolve(ctx, 4)
	require.ErrorIs(t, err, domain.ErrNotFound)

	all, err := roster.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(3), all[0].ID)
}

func TestRosterRejectsBadEntries(t *testing.T) {
	t.Parallel()

	_, err := NewRoster([]domain.Identity{{ID: 1, Address: "nope"}})
	require.Error(t, err)

	_, err = NewRoster([]domain.Identity{
		{ID: 1, Address: "0x2222222222222222222222222222222222222222"},
		{ID: 1, Address: "0x3333333333333333333333333333333333333333"},
	})
	require.ErrorContains(t, err, "duplicate id")

	_, err = NewRoster([]domain.Identity{
		{ID: 1, Address: "0x2222222222222222222222222222222222222222"},
		{ID: 2, Address: "0x2222222222222222222222222222222222222222"},
	})
	require.ErrorContains(t, err, "already used")
}
