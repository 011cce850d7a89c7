package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalcAccuracyPerfect(t *testing.T) {
	s := &Score{Mode: ModeStandard, Count300: 200}
	require.InDelta(t, 100.0, s.CalcAccuracy(), 0.001)
}

func TestCalcAccuracyHalfHundreds(t *testing.T) {
	s := &Score{Mode: ModeStandard, Count300: 50, Count100: 50}
	require.InDelta(t, 66.67, s.CalcAccuracy(), 0.01)
}

func TestCalcAccuracyEmptyPlay(t *testing.T) {
	s := &Score{Mode: ModeStandard}
	require.Zero(t, s.CalcAccuracy())
}

func TestCalcAccuracyTaiko(t *testing.T) {
	// Taiko halves count as 50% hits.
	s := &Score{Mode: ModeTaiko, Count300: 50, Count100: 50}
	require.InDelta(t, 75.0, s.CalcAccuracy(), 0.001)
}

func TestRankingMetricPerVariant(t *testing.T) {
	s := &Score{Score: 1_000_000, PP: 420.5}

	s.Variant = VariantVanilla
	require.Equal(t, float64(1_000_000), s.RankingMetric())

	s.Variant = VariantRelax
	require.Equal(t, 420.5, s.RankingMetric())

	s.Variant = VariantAutopilot
	require.Equal(t, 420.5, s.RankingMetric())
}

func TestVariantFromMods(t *testing.T) {
	require.Equal(t, VariantRelax, VariantFromMods(ModRelax, ModeStandard))
	require.Equal(t, VariantAutopilot, VariantFromMods(ModAutopilot, ModeStandard))
	require.Equal(t, VariantVanilla, VariantFromMods(ModHidden|ModDoubleTime, ModeStandard))
	// Mania has no alternate variants regardless of mods.
	require.Equal(t, VariantVanilla, VariantFromMods(ModRelax, ModeMania))
}

func TestModsReadable(t *testing.T) {
	require.Equal(t, "NM", Mods(0).Readable())
	require.Equal(t, "HDDT", (ModHidden | ModDoubleTime).Readable())
}

func TestModsConflict(t *testing.T) {
	require.True(t, (ModEasy | ModHardRock).Conflict())
	require.True(t, (ModDoubleTime | ModHalfTime).Conflict())
	require.False(t, (ModHidden | ModHardRock).Conflict())
}

func TestModsRankable(t *testing.T) {
	require.False(t, ModAutoplay.Rankable())
	require.False(t, ModScoreV2.Rankable())
	require.True(t, (ModHidden | ModFlashlight).Rankable())
}
