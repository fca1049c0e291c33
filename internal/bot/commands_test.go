package bot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdtrack/holdtrack/internal/bot"
	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/holder"
	"github.com/holdtrack/holdtrack/internal/provider/resilience"
	"github.com/holdtrack/holdtrack/internal/worker"
)

const (
	adminID = int64(1001)
	userID  = int64(2002)

	walletA = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	walletB = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

type fakeTrigger struct {
	result *worker.SnapshotResult
	err    error
	calls  int
}

func (f *fakeTrigger) TriggerNow(_ context.Context) (*worker.SnapshotResult, error) {
	f.calls++
	return f.result, f.err
}

type commandsFixture struct {
	cmds    *bot.Commands
	holders *holder.Service
	trigger *fakeTrigger
}

func newCommandsFixture(t *testing.T) *commandsFixture {
	t.Helper()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	svc := holder.NewService(holder.ServiceConfig{
		Repository: holder.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	})

	ctx := context.Background()
	_, err := svc.RecordSnapshot(ctx, start, []chain.Balance{{Owner: walletA, Amount: 1000}}, 0.02)
	require.NoError(t, err)
	now = start.AddDate(0, 0, 40)
	_, err = svc.RecordSnapshot(ctx, now, []chain.Balance{
		{Owner: walletA, Amount: 1000},
		{Owner: walletB, Amount: 50},
	}, 0.02)
	require.NoError(t, err)

	reg := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("helius")
	cfg.Registry = reg
	resilience.NewClient(cfg)

	f := &commandsFixture{holders: svc, trigger: &fakeTrigger{}}
	f.cmds = bot.NewCommands(bot.CommandsConfig{
		Holders:          svc,
		Snapshots:        f.trigger,
		Providers:        reg,
		AdminUserIDs:     []int64{adminID},
		LeaderboardLimit: 10,
		MinimumHoldDays:  30,
		RetentionDays:    30,
		Logger:           zerolog.Nop(),
	})
	return f
}

func (f *commandsFixture) run(userID int64, cmd, args string) string {
	return f.cmds.Execute(context.Background(), bot.Request{UserID: userID, Command: cmd, Args: args})
}

func TestCommands_Help(t *testing.T) {
	f := newCommandsFixture(t)

	assert.Contains(t, f.run(userID, "start", ""), "Welcome")
	assert.NotContains(t, f.run(userID, "help", ""), "/admin")
	assert.Contains(t, f.run(adminID, "help", ""), "/admin")
}

func TestCommands_Leaderboard(t *testing.T) {
	f := newCommandsFixture(t)

	out := f.run(userID, "leaderboard", "")
	assert.Contains(t, out, "1. <code>EPjF...Dt1v</code> · 40 days · $20.00")
	assert.Contains(t, out, "2. <code>Es9v...wNYB</code> · 0 days · $1.00")
}

func TestCommands_Rank(t *testing.T) {
	f := newCommandsFixture(t)

	assert.Contains(t, f.run(userID, "rank", walletA), "Rank: #1")
	assert.Contains(t, f.run(userID, "rank", ""), "Usage")
	assert.Contains(t, f.run(userID, "rank", "0xabc"), "does not look like")
	assert.Contains(t, f.run(userID, "rank", "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"), "not holding")

	require.NoError(t, f.holders.SetThreshold(context.Background(), 5))
	assert.Contains(t, f.run(userID, "rank", walletB), "unranked")
}

func TestCommands_HistoryAndStats(t *testing.T) {
	f := newCommandsFixture(t)

	history := f.run(userID, "history", walletA)
	assert.Contains(t, history, "2026-02-10")
	assert.Contains(t, history, "2026-01-01")
	assert.Contains(t, history, "1,000 tokens")

	stats := f.run(userID, "stats", "")
	assert.Contains(t, stats, "Holders: 2 (2 ranked)")
	assert.Contains(t, stats, "Total value: $21.00")
	assert.Contains(t, stats, "Last snapshot: 2026-02-10")
}

func TestCommands_AdminOnly(t *testing.T) {
	f := newCommandsFixture(t)

	for _, cmd := range []string{"admin", "snapshot", "setthreshold", "eligible", "cleanup", "validate", "setprice"} {
		assert.Contains(t, f.run(userID, cmd, "10"), "administrators only", cmd)
	}
	assert.Zero(t, f.trigger.calls)
}

func TestCommands_AdminPanel(t *testing.T) {
	f := newCommandsFixture(t)

	out := f.run(adminID, "admin", "")
	assert.Contains(t, out, "/snapshot")
	assert.Contains(t, out, "older than 30 days")
	assert.Contains(t, out, "🟢 helius (closed)")
}

func TestCommands_SetThreshold(t *testing.T) {
	f := newCommandsFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(adminID, "setthreshold", "$2.5"), "$2.50")
	v, err := f.holders.Threshold(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 1e-9)

	assert.Contains(t, f.run(adminID, "setthreshold", "abc"), "Usage")
	assert.Contains(t, f.run(adminID, "setthreshold", "-3"), "zero or more")
}

func TestCommands_Eligible(t *testing.T) {
	f := newCommandsFixture(t)

	out := f.run(adminID, "eligible", "")
	assert.Contains(t, out, "1 eligible wallets")
	assert.Contains(t, out, walletA)
	assert.NotContains(t, out, walletB)
}

func TestCommands_Snapshot(t *testing.T) {
	f := newCommandsFixture(t)

	f.trigger.result = &worker.SnapshotResult{
		Duration: 1500 * time.Millisecond,
		PriceUSD: 0.03,
		Summary:  &holder.SnapshotSummary{Holders: 12, Added: 2, Removed: 1},
	}
	out := f.run(adminID, "snapshot", "")
	assert.Contains(t, out, "Holders: 12 (+2, -1)")
	assert.Contains(t, out, "1.5s")

	f.trigger.result = &worker.SnapshotResult{
		PriceUSD:        0.25,
		PriceOverridden: true,
		Summary:         &holder.SnapshotSummary{Holders: 12},
	}
	assert.Contains(t, f.run(adminID, "snapshot", ""), "Price: $0.25 (manual)")

	f.trigger.result = &worker.SnapshotResult{Err: errors.New("helius <down>")}
	assert.Contains(t, f.run(adminID, "snapshot", ""), "helius &lt;down&gt;")

	f.trigger.err = worker.ErrRunInProgress
	assert.Contains(t, f.run(adminID, "snapshot", ""), "already running")
}

func TestCommands_Unknown(t *testing.T) {
	f := newCommandsFixture(t)

	assert.Contains(t, f.run(userID, "moon", ""), "Unknown command /moon")
}

func TestCommands_SetPrice(t *testing.T) {
	f := newCommandsFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(adminID, "setprice", ""), "No manual price")

	assert.Contains(t, f.run(adminID, "setprice", "$0.0125"), "$0.0125")
	v, ok, err := f.holders.PriceOverride(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.0125, v, 1e-9)
	assert.Contains(t, f.run(adminID, "setprice", ""), "$0.0125")

	assert.Contains(t, f.run(adminID, "setprice", "abc"), "Usage")
	assert.Contains(t, f.run(adminID, "setprice", "0"), "positive")

	assert.Contains(t, f.run(adminID, "setprice", "CLEAR"), "cleared")
	_, ok, err = f.holders.PriceOverride(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommands_Cleanup(t *testing.T) {
	f := newCommandsFixture(t)

	assert.Contains(t, f.run(adminID, "cleanup", ""), "Deleted 1 snapshot rows older than 30 days")

	history, err := f.holders.History(context.Background(), walletA, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2026-02-10", history[0].SnapshotDate.Format(time.DateOnly))

	assert.Contains(t, f.run(adminID, "cleanup", ""), "Deleted 0 snapshot rows")
}

func TestCommands_Validate(t *testing.T) {
	f := newCommandsFixture(t)

	assert.Contains(t, f.run(adminID, "validate", ""), "consistent")
}
