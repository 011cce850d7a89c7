package domain

// Stats is a player's derived statistics for one (mode, variant) pair.
type Stats struct {
	UserID  int64
	Mode    Mode
	Variant Variant

	RankedScore int64
	TotalScore  int64
	PP          float64
	Rank        int64
	Accuracy    float64
	Playcount   int64
	MaxCombo    int
	TotalHits   int64

	// RecalcThreshold is the performance value of the player's 100th best
	// score at the time of the last full recalculation. Submissions below it
	// cannot change the weighted top-100 set, so only the bonus term needs
	// refreshing.
	RecalcThreshold float64
	// LastBonusPP is the bonus contribution included in PP.
	LastBonusPP float64
}
