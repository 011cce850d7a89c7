package bus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"score-server/internal/domain"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("1234")
	require.NoError(t, err)
	require.Equal(t, int64(1234), id)

	_, err = ParseID("not-a-number")
	require.Error(t, err)

	_, err = ParseID("")
	require.Error(t, err)
}

func TestParseRenamePayload(t *testing.T) {
	p, err := ParseRenamePayload(`{"id":42,"newName":"Fresh Name"}`)
	require.NoError(t, err)
	require.Equal(t, int64(42), p.ID)
	require.Equal(t, "Fresh Name", p.NewName)

	_, err = ParseRenamePayload("{broken")
	require.Error(t, err)
}

func TestParseBoardPayload(t *testing.T) {
	md5 := "cccccccccccccccccccccccccccccccc"
	key, err := ParseBoardPayload(md5 + ":0:1")
	require.NoError(t, err)
	require.Equal(t, md5, key.MD5)
	require.Equal(t, domain.ModeStandard, key.Mode)
	require.Equal(t, domain.VariantRelax, key.Variant)

	_, err = ParseBoardPayload(md5)
	require.Error(t, err)

	_, err = ParseBoardPayload(md5 + ":x:1")
	require.Error(t, err)
}

func TestRankKeys(t *testing.T) {
	require.Equal(t, "leaderboard:vanilla:std", rankKey(domain.VariantVanilla, domain.ModeStandard))
	require.Equal(t, "leaderboard:relax:taiko", rankKey(domain.VariantRelax, domain.ModeTaiko))
	require.Equal(t, "leaderboard:vanilla:mania:us",
		countryRankKey(domain.VariantVanilla, domain.ModeMania, "US"))
}
