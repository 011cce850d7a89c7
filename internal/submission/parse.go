// Package submission runs the score submission pipeline: parse,
// authenticate, validate, classify, persist and fan out side effects.
package submission

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"score-server/internal/domain"
)

// Sentinel rejections. The transport layer maps each to the short reply the
// client understands.
var (
	// ErrRejected drops the submission without client-visible detail.
	ErrRejected = errors.New("submission rejected")
	// ErrBadCredentials fails the submitter's session.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrNoBeatmap rejects a play on a map the server cannot resolve.
	ErrNoBeatmap = errors.New("unknown beatmap")
)

const scoreDataFields = 18

// ParseScoreData decodes the colon-separated score block the client submits.
// The trailing two fields are client bookkeeping and ignored.
func ParseScoreData(data string) (*domain.Score, error) {
	parts := strings.Split(data, ":")
	if len(parts) != scoreDataFields {
		return nil, fmt.Errorf("%w: score data has %d fields", ErrRejected, len(parts))
	}

	ints := make([]int64, scoreDataFields)
	for _, idx := range []int{3, 4, 5, 6, 7, 8, 9, 10, 13, 15} {
		v, err := strconv.ParseInt(parts[idx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d is not numeric", ErrRejected, idx)
		}
		ints[idx] = v
	}

	mode := domain.Mode(ints[15])
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: invalid mode %d", ErrRejected, ints[15])
	}
	mods := domain.Mods(ints[13])

	s := &domain.Score{
		Beatmap:   &domain.Beatmap{MD5: parts[0]},
		Username:  strings.TrimRight(parts[1], " "),
		Count50:   int(ints[3]),
		Count100:  int(ints[4]),
		Count300:  int(ints[5]),
		CountMiss: int(ints[6]),
		CountGeki: int(ints[7]),
		CountKatu: int(ints[8]),
		Score:     ints[9],
		MaxCombo:  int(ints[10]),
		FullCombo: parseBool(parts[11]),
		Grade:     parts[12],
		Mods:      mods,
		Passed:    parseBool(parts[14]),
		Mode:      mode,
		Variant:   domain.VariantFromMods(mods, mode),
	}
	s.CalcAccuracy()
	return s, nil
}

func parseBool(v string) bool {
	return v == "True" || v == "1"
}
