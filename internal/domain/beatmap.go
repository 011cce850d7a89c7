package domain

// Beatmap is the subset of beatmap metadata the score core reads and writes.
type Beatmap struct {
	ID           int64
	SetID        int64
	MD5          string
	SongName     string
	AR           float64
	OD           float64
	Mode         Mode
	MaxCombo     int
	HitLength    int
	BPM          int
	Rating       float64
	Playcount    int64
	Passcount    int64
	LastUpdate   int64
	Status       RankedStatus
	StatusFrozen bool

	DifficultySTD   float64
	DifficultyTaiko float64
	DifficultyCatch float64
	DifficultyMania float64
}

// HasLeaderboard reports whether the map serves ranked leaderboards.
func (b *Beatmap) HasLeaderboard() bool {
	return b.Status.HasLeaderboard()
}

// Difficulty returns the star rating for the map's primary mode.
func (b *Beatmap) Difficulty() float64 {
	switch b.Mode {
	case ModeTaiko:
		return b.DifficultyTaiko
	case ModeCatch:
		return b.DifficultyCatch
	case ModeMania:
		return b.DifficultyMania
	}
	return b.DifficultySTD
}
