// Package leaderboard builds and caches per-beatmap rankings of best scores.
package leaderboard

import (
	"sync"

	"score-server/internal/constants"
	"score-server/internal/domain"
)

// Key identifies one cached leaderboard. The beatmap hash leads so a whole
// map's boards can be matched by prefix component.
type Key struct {
	MD5     string
	Mode    domain.Mode
	Variant domain.Variant
}

// Leaderboard is the ordered set of eligible best scores on one beatmap for
// one mode and variant. Only the top window is materialized; the total
// eligible count is tracked separately.
type Leaderboard struct {
	Key     Key
	Beatmap *domain.Beatmap

	mu     sync.RWMutex
	scores []*domain.Score
	total  int
}

func newLeaderboard(key Key, beatmap *domain.Beatmap, scores []*domain.Score, total int) *Leaderboard {
	lb := &Leaderboard{Key: key, Beatmap: beatmap, scores: scores, total: total}
	lb.renumber()
	return lb
}

// Scores returns a snapshot of the materialized window, placements assigned.
func (lb *Leaderboard) Scores() []*domain.Score {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	out := make([]*domain.Score, len(lb.scores))
	copy(out, lb.scores)
	return out
}

// Total is the count of every eligible best on the board, including scores
// outside the materialized window.
func (lb *Leaderboard) Total() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.total
}

// PersonalBest returns the player's score if it sits inside the window.
func (lb *Leaderboard) PersonalBest(userID int64) (*domain.Score, bool) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	for _, s := range lb.scores {
		if s.UserID == userID {
			return s, true
		}
	}
	return nil, false
}

// HasUser reports whether the player holds a score inside the window.
func (lb *Leaderboard) HasUser(userID int64) bool {
	_, ok := lb.PersonalBest(userID)
	return ok
}

// Insert places a new best into the board, displacing the player's previous
// entry. Order is ranking metric descending, score id ascending on ties, so
// the earlier submission keeps the higher placement.
func (lb *Leaderboard) Insert(s *domain.Score) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if !lb.removeUserLocked(s.UserID) {
		lb.total++
	}

	pos := len(lb.scores)
	for i, existing := range lb.scores {
		if s.RankingMetric() > existing.RankingMetric() ||
			(s.RankingMetric() == existing.RankingMetric() && s.ID < existing.ID) {
			pos = i
			break
		}
	}
	lb.scores = append(lb.scores, nil)
	copy(lb.scores[pos+1:], lb.scores[pos:])
	lb.scores[pos] = s

	if len(lb.scores) > constants.LeaderboardSize {
		lb.scores = lb.scores[:constants.LeaderboardSize]
	}
	lb.renumber()
}

// RemoveUser drops the player's entry from the window, if present.
func (lb *Leaderboard) RemoveUser(userID int64) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if !lb.removeUserLocked(userID) {
		return false
	}
	lb.total--
	lb.renumber()
	return true
}

func (lb *Leaderboard) removeUserLocked(userID int64) bool {
	for i, s := range lb.scores {
		if s.UserID == userID {
			lb.scores = append(lb.scores[:i], lb.scores[i+1:]...)
			return true
		}
	}
	return false
}

// RenameUser rewrites the display name on the player's entry.
func (lb *Leaderboard) RenameUser(userID int64, username string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	for _, s := range lb.scores {
		if s.UserID == userID {
			s.Username = username
		}
	}
}

func (lb *Leaderboard) renumber() {
	for i, s := range lb.scores {
		s.Placement = i + 1
	}
}
