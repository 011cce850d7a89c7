package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"score-server/internal/beatmaps"
	"score-server/internal/constants"
	"score-server/internal/domain"
	"score-server/internal/identity"
	"score-server/internal/leaderboard"
	"score-server/internal/performance"
	"score-server/internal/repository"
	"score-server/internal/stats"
)

// Inbound channels the listener reacts to.
const (
	ChannelRename             = "players:rename"
	ChannelPrivileges         = "players:privileges"
	ChannelPassword           = "players:password"
	ChannelPlayerBan          = "players:ban"
	ChannelClan               = "players:clan"
	ChannelBeatmapDecache     = "beatmaps:decache"
	ChannelLeaderboardRefresh = "leaderboards:refresh"
	ChannelScoreRecalc        = "scores:recalc"
	ChannelPlayerRecalc       = "players:recalc"
)

// Handler processes one message payload.
type Handler func(ctx context.Context, payload string) error

// Listener consumes the invalidation channels and applies each message to
// the in-process caches and stores. A handler failure is recorded as a dead
// letter and never stops consumption.
type Listener struct {
	client      *redis.Client
	caches      *identity.Caches
	beatmaps    *beatmaps.Source
	boards      *leaderboard.Store
	aggregator  *stats.Aggregator
	scores      *repository.ScoreRepository
	users       *repository.UserRepository
	deadLetters *repository.DeadLetterRepository
	ranks       *RankStore
	perf        performance.Calculator
	logger      zerolog.Logger

	handlers map[string]Handler
}

func NewListener(
	client *redis.Client,
	caches *identity.Caches,
	beatmapSource *beatmaps.Source,
	boards *leaderboard.Store,
	aggregator *stats.Aggregator,
	scores *repository.ScoreRepository,
	users *repository.UserRepository,
	deadLetters *repository.DeadLetterRepository,
	ranks *RankStore,
	perf performance.Calculator,
	logger zerolog.Logger,
) *Listener {
	l := &Listener{
		client:      client,
		caches:      caches,
		beatmaps:    beatmapSource,
		boards:      boards,
		aggregator:  aggregator,
		scores:      scores,
		users:       users,
		deadLetters: deadLetters,
		ranks:       ranks,
		perf:        perf,
		logger:      logger,
	}

	l.handlers = map[string]Handler{
		ChannelRename:             l.handleRename,
		ChannelPrivileges:         l.handlePrivileges,
		ChannelPassword:           l.handlePassword,
		ChannelPlayerBan:          l.handleBan,
		ChannelClan:               l.handleClan,
		ChannelBeatmapDecache:     l.handleBeatmapDecache,
		ChannelLeaderboardRefresh: l.handleLeaderboardRefresh,
		ChannelScoreRecalc:        l.handleScoreRecalc,
		ChannelPlayerRecalc:       l.handlePlayerRecalc,
	}
	return l
}

// Channels lists every channel the listener subscribes to.
func (l *Listener) Channels() []string {
	out := make([]string, 0, len(l.handlers))
	for ch := range l.handlers {
		out = append(out, ch)
	}
	return out
}

// Run consumes until the context is cancelled, reconnecting with capped
// exponential backoff when the subscription drops.
func (l *Listener) Run(ctx context.Context) error {
	backoff := retry.WithCappedDuration(
		constants.BusReconnectMaxDelay,
		retry.NewFibonacci(constants.BusReconnectBaseDelay),
	)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := l.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Error().Err(err).Msg("bus subscription dropped, reconnecting")
		return retry.RetryableError(err)
	})
}

func (l *Listener) consume(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, l.Channels()...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	l.logger.Info().Int("channels", len(l.handlers)).Msg("bus listener subscribed")

	for msg := range sub.Channel() {
		l.dispatch(ctx, msg.Channel, msg.Payload)
	}
	return fmt.Errorf("subscription channel closed")
}

func (l *Listener) dispatch(ctx context.Context, channel, payload string) {
	handler, ok := l.handlers[channel]
	if !ok {
		return
	}

	if err := handler(ctx, payload); err != nil {
		l.logger.Error().Err(err).
			Str("channel", channel).
			Str("payload", payload).
			Msg("bus handler failed")
		if dlErr := l.deadLetters.Record(ctx, channel, []byte(payload), err); dlErr != nil {
			l.logger.Error().Err(dlErr).Msg("failed to record dead letter")
		}
		return
	}

	l.logger.Debug().Str("channel", channel).Str("payload", payload).Msg("bus message handled")
}

// ParseID decodes the numeric-id payload most channels carry.
func ParseID(payload string) (int64, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse id payload %q: %w", payload, err)
	}
	return id, nil
}

// RenamePayload is the JSON body carried on the rename channel.
type RenamePayload struct {
	ID      int64  `json:"id"`
	NewName string `json:"newName"`
}

// ParseRenamePayload decodes a rename message.
func ParseRenamePayload(payload string) (RenamePayload, error) {
	var p RenamePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return p, fmt.Errorf("failed to parse rename payload: %w", err)
	}
	return p, nil
}

// ParseBoardPayload decodes the "md5:mode:variant" payload of the board
// refresh channel.
func ParseBoardPayload(payload string) (leaderboard.Key, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return leaderboard.Key{}, fmt.Errorf("malformed board payload %q", payload)
	}
	mode, err := strconv.Atoi(parts[1])
	if err != nil {
		return leaderboard.Key{}, fmt.Errorf("malformed board payload %q: %w", payload, err)
	}
	variant, err := strconv.Atoi(parts[2])
	if err != nil {
		return leaderboard.Key{}, fmt.Errorf("malformed board payload %q: %w", payload, err)
	}
	return leaderboard.Key{
		MD5:     parts[0],
		Mode:    domain.Mode(mode),
		Variant: domain.Variant(variant),
	}, nil
}

func (l *Listener) handleRename(ctx context.Context, payload string) error {
	p, err := ParseRenamePayload(payload)
	if err != nil {
		return err
	}
	if err := l.caches.Names.LoadFromID(ctx, p.ID); err != nil {
		return err
	}
	l.boards.RenameUser(p.ID, p.NewName)
	return nil
}

func (l *Listener) handlePrivileges(ctx context.Context, payload string) error {
	id, err := ParseID(payload)
	if err != nil {
		return err
	}
	return l.caches.Privileges.LoadSingular(ctx, id)
}

func (l *Listener) handlePassword(ctx context.Context, payload string) error {
	var p struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to parse password payload: %w", err)
	}
	l.caches.Credentials.DropCache(p.ID)
	return nil
}

// handleBan refreshes the player's privileges and, when they are no longer
// publicly visible, scrubs them from every ranking surface.
func (l *Listener) handleBan(ctx context.Context, payload string) error {
	id, err := ParseID(payload)
	if err != nil {
		return err
	}
	if err := l.caches.Privileges.LoadSingular(ctx, id); err != nil {
		return err
	}

	privs, ok := l.caches.Privileges.Get(ctx, id)
	if ok && privs.IsPubliclyVisible() {
		return nil
	}

	l.boards.RemoveUser(id)
	l.aggregator.Drop(id)

	country, err := l.users.CountryByID(ctx, id)
	if err != nil {
		return err
	}
	return l.ranks.RemoveUser(ctx, id, country)
}

func (l *Listener) handleClan(ctx context.Context, payload string) error {
	id, err := ParseID(payload)
	if err != nil {
		return err
	}
	return l.caches.Clans.CacheIndividual(ctx, id)
}

func (l *Listener) handleBeatmapDecache(ctx context.Context, payload string) error {
	l.beatmaps.Drop(payload)
	dropped := l.boards.DropBeatmap(payload)
	l.logger.Info().Str("beatmap_md5", payload).Int("boards", dropped).Msg("beatmap decached")
	return nil
}

func (l *Listener) handleLeaderboardRefresh(ctx context.Context, payload string) error {
	key, err := ParseBoardPayload(payload)
	if err != nil {
		return err
	}
	l.beatmaps.Drop(key.MD5)
	bmap, err := l.beatmaps.Refresh(ctx, key.MD5)
	if err != nil {
		return err
	}
	return l.boards.Refresh(ctx, key, bmap)
}

// handleScoreRecalc recomputes one score's performance value in place.
func (l *Listener) handleScoreRecalc(ctx context.Context, payload string) error {
	id, err := ParseID(payload)
	if err != nil {
		return err
	}

	s, err := l.scores.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("score %d not found", id)
	}

	beatmap, origin, err := l.beatmaps.FromMD5(ctx, s.Beatmap.MD5)
	if err != nil {
		return err
	}
	if origin.Found() {
		s.Beatmap = beatmap
	}

	pp, _, err := l.perf.Calculate(ctx, s)
	if err != nil {
		return err
	}
	return l.scores.UpdatePP(ctx, s.ID, pp)
}

// handlePlayerRecalc rebuilds the player's statistics for every mode and
// variant from their stored scores.
func (l *Listener) handlePlayerRecalc(ctx context.Context, payload string) error {
	id, err := ParseID(payload)
	if err != nil {
		return err
	}

	country, err := l.users.CountryByID(ctx, id)
	if err != nil {
		return err
	}

	for _, variant := range domain.Variants() {
		for _, mode := range variant.CompatibleModes() {
			if err := l.recalcOne(ctx, id, mode, variant, country); err != nil {
				return err
			}
		}
	}

	l.logger.Info().Int64("user_id", id).Msg("player statistics recalculated")
	return nil
}

// recalcOne rebuilds one stats object under its lock so a concurrent
// submission fold-in cannot interleave.
func (l *Listener) recalcOne(ctx context.Context, id int64, mode domain.Mode, variant domain.Variant, country string) error {
	mu := l.aggregator.LockFor(id, mode, variant)
	mu.Lock()
	defer mu.Unlock()

	st, err := l.aggregator.Get(ctx, id, mode, variant)
	if err != nil {
		return err
	}
	if err := l.aggregator.RecalcPerformance(ctx, st, 0); err != nil {
		return err
	}
	if err := l.aggregator.RefreshMaxCombo(ctx, st); err != nil {
		return err
	}
	if err := l.aggregator.Save(ctx, st); err != nil {
		return err
	}
	return l.ranks.UpdateUser(ctx, id, mode, variant, country, st.PP)
}
