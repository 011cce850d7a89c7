package domain

// Mode is an in-game ruleset.
type Mode int

const (
	ModeStandard Mode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

func (m Mode) Valid() bool {
	return m >= ModeStandard && m <= ModeMania
}

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "std"
	case ModeTaiko:
		return "taiko"
	case ModeCatch:
		return "ctb"
	case ModeMania:
		return "mania"
	}
	return "unknown"
}

// Variant is a scoring variant: an alternate ruleset ranked separately from
// the standard one.
type Variant int

const (
	VariantVanilla Variant = iota
	VariantRelax
	VariantAutopilot
)

// VariantFromMods derives the scoring variant from a mod combination. Mania
// only supports vanilla.
func VariantFromMods(mods Mods, mode Mode) Variant {
	if mode == ModeMania {
		return VariantVanilla
	}
	if mods&ModAutopilot != 0 {
		return VariantAutopilot
	}
	if mods&ModRelax != 0 {
		return VariantRelax
	}
	return VariantVanilla
}

// UsesPerformanceRanking reports whether leaderboards for this variant rank
// by performance value rather than raw score.
func (v Variant) UsesPerformanceRanking() bool {
	return v == VariantRelax || v == VariantAutopilot
}

func (v Variant) Acronym() string {
	switch v {
	case VariantRelax:
		return "RX"
	case VariantAutopilot:
		return "AP"
	}
	return "VN"
}

func (v Variant) String() string {
	switch v {
	case VariantRelax:
		return "relax"
	case VariantAutopilot:
		return "autopilot"
	}
	return "vanilla"
}

// ReplaySuffix is the directory suffix used for replay storage per variant.
func (v Variant) ReplaySuffix() string {
	switch v {
	case VariantRelax:
		return "_relax"
	case VariantAutopilot:
		return "_ap"
	}
	return ""
}

// CompatibleModes lists the modes playable under the variant. Autopilot is
// standard only; relax excludes mania.
func (v Variant) CompatibleModes() []Mode {
	switch v {
	case VariantRelax:
		return []Mode{ModeStandard, ModeTaiko, ModeCatch}
	case VariantAutopilot:
		return []Mode{ModeStandard}
	}
	return []Mode{ModeStandard, ModeTaiko, ModeCatch, ModeMania}
}

// Variants lists every scoring variant.
func Variants() []Variant {
	return []Variant{VariantVanilla, VariantRelax, VariantAutopilot}
}

// Completed is the terminal classification of a submitted score.
type Completed int

const (
	CompletedQuit Completed = iota
	CompletedFailed
	CompletedComplete
	CompletedBest
)

// Finished reports whether the player finished playing the map.
func (c Completed) Finished() bool {
	return c == CompletedComplete || c == CompletedBest
}

// RankedStatus is the moderation status of a beatmap.
type RankedStatus int

const (
	StatusNotSubmitted RankedStatus = -1
	StatusPending      RankedStatus = 0
	StatusNeedsUpdate  RankedStatus = 1
	StatusRanked       RankedStatus = 2
	StatusApproved     RankedStatus = 3
	StatusQualified    RankedStatus = 4
	StatusLoved        RankedStatus = 5
)

// HasLeaderboard reports whether beatmaps of this status serve leaderboards.
func (s RankedStatus) HasLeaderboard() bool {
	return s >= StatusRanked && s <= StatusLoved
}

// AwardsPerformance reports whether scores on this status count toward a
// player's aggregated performance.
func (s RankedStatus) AwardsPerformance() bool {
	return s == StatusRanked || s == StatusApproved
}

// FetchOrigin tags which layer satisfied a lookup. Purely observational;
// the only behavioral meaning is FetchNone = not found.
type FetchOrigin int

const (
	FetchNone FetchOrigin = iota
	FetchCache
	FetchDatabase
	FetchExternalAPI
	FetchDerived
)

// Found reports whether the lookup produced a result.
func (f FetchOrigin) Found() bool { return f != FetchNone }

func (f FetchOrigin) String() string {
	switch f {
	case FetchCache:
		return "cache"
	case FetchDatabase:
		return "database"
	case FetchExternalAPI:
		return "api"
	case FetchDerived:
		return "derived"
	}
	return "none"
}

// LeaderboardType is the in-game leaderboard filter requested by the client.
type LeaderboardType int

const (
	LeaderboardLocal   LeaderboardType = 0
	LeaderboardGlobal  LeaderboardType = 1
	LeaderboardMod     LeaderboardType = 2
	LeaderboardFriends LeaderboardType = 3
	LeaderboardCountry LeaderboardType = 4
)
