package domain

import "strings"

// Mods is the bitmask of gameplay modifiers active on a score.
type Mods uint32

const (
	ModNoFail      Mods = 1 << 0
	ModEasy        Mods = 1 << 1
	ModTouchscreen Mods = 1 << 2
	ModHidden      Mods = 1 << 3
	ModHardRock    Mods = 1 << 4
	ModSuddenDeath Mods = 1 << 5
	ModDoubleTime  Mods = 1 << 6
	ModRelax       Mods = 1 << 7
	ModHalfTime    Mods = 1 << 8
	ModNightcore   Mods = 1 << 9
	ModFlashlight  Mods = 1 << 10
	ModAutoplay    Mods = 1 << 11
	ModSpunOut     Mods = 1 << 12
	ModAutopilot   Mods = 1 << 13
	ModPerfect     Mods = 1 << 14
	ModScoreV2     Mods = 1 << 29
)

// Rankable reports whether the combination may be submitted at all.
func (m Mods) Rankable() bool {
	return m&(ModAutoplay|ModScoreV2) == 0
}

// Conflicting mod pairs cannot be active together on a legitimate client;
// their presence is an anticheat signal rather than a validation failure.
func (m Mods) Conflict() bool {
	switch {
	case m&(ModEasy|ModHardRock) == ModEasy|ModHardRock:
		return true
	case m&(ModDoubleTime|ModHalfTime) == ModDoubleTime|ModHalfTime:
		return true
	case m&(ModNoFail|ModSuddenDeath) == ModNoFail|ModSuddenDeath:
		return true
	case m&(ModNoFail|ModPerfect) == ModNoFail|ModPerfect:
		return true
	case m&(ModRelax|ModAutopilot) == ModRelax|ModAutopilot:
		return true
	}
	return false
}

var modAcronyms = []struct {
	mod     Mods
	acronym string
}{
	{ModNoFail, "NF"},
	{ModEasy, "EZ"},
	{ModTouchscreen, "TD"},
	{ModHidden, "HD"},
	{ModHardRock, "HR"},
	{ModSuddenDeath, "SD"},
	{ModDoubleTime, "DT"},
	{ModRelax, "RX"},
	{ModHalfTime, "HT"},
	{ModNightcore, "NC"},
	{ModFlashlight, "FL"},
	{ModAutoplay, "AT"},
	{ModSpunOut, "SO"},
	{ModAutopilot, "AP"},
	{ModPerfect, "PF"},
	{ModScoreV2, "V2"},
}

// Readable renders the mod combination as joined acronyms, e.g. "HDDT".
func (m Mods) Readable() string {
	if m == 0 {
		return "NM"
	}

	var sb strings.Builder
	for _, ma := range modAcronyms {
		if m&ma.mod != 0 {
			sb.WriteString(ma.acronym)
		}
	}
	return sb.String()
}
