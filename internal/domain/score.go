package domain

// Score is a single play attempt. Immutable once persisted, except for its
// performance value which may be recomputed offline.
type Score struct {
	ID       int64
	Beatmap  *Beatmap
	UserID   int64
	Username string

	Score     int64
	MaxCombo  int
	FullCombo bool
	Passed    bool
	Quit      bool
	Mods      Mods
	Mode      Mode
	Variant   Variant

	Count300  int
	Count100  int
	Count50   int
	CountKatu int
	CountGeki int
	CountMiss int

	Timestamp int64
	Completed Completed
	Accuracy  float64
	PP        float64
	SR        float64
	PlayTime  int
	Placement int
	Grade     string
}

// Submitted reports whether the score has been assigned a database id.
func (s *Score) Submitted() bool {
	return s.ID != 0
}

// RankingMetric is the value leaderboards order by for the score's variant.
func (s *Score) RankingMetric() float64 {
	if s.Variant.UsesPerformanceRanking() {
		return s.PP
	}
	return float64(s.Score)
}

// TotalHits is every judged object in the play.
func (s *Score) TotalHits() int {
	return s.Count300 + s.Count100 + s.Count50
}

// CalcAccuracy computes and stores the accuracy percentage using the
// weighted-hit formula of the score's mode.
func (s *Score) CalcAccuracy() float64 {
	var acc float64

	switch s.Mode {
	case ModeStandard:
		total := s.Count300 + s.Count100 + s.Count50 + s.CountMiss
		if total > 0 {
			acc = float64(s.Count50*50+s.Count100*100+s.Count300*300) /
				float64(total*300)
		}
	case ModeTaiko:
		total := s.Count300 + s.Count100 + s.CountMiss
		if total > 0 {
			acc = float64(s.Count100*50+s.Count300*100) / float64(total*100)
		}
	case ModeCatch:
		total := s.Count300 + s.Count100 + s.Count50 + s.CountMiss + s.CountKatu
		if total > 0 {
			acc = float64(s.Count300+s.Count100+s.Count50) / float64(total)
		}
	case ModeMania:
		total := s.CountMiss + s.Count50 + s.Count100 + s.Count300 + s.CountGeki + s.CountKatu
		if total > 0 {
			acc = float64(s.Count50*50+s.Count100*100+s.CountKatu*200+
				(s.Count300+s.CountGeki)*300) / float64(total*300)
		}
	}

	s.Accuracy = acc * 100
	return s.Accuracy
}
