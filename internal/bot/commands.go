package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/holder"
	"github.com/holdtrack/holdtrack/internal/provider/resilience"
	"github.com/holdtrack/holdtrack/internal/worker"
)

// HolderService is the holder tracking surface the commands use.
type HolderService interface {
	Leaderboard(ctx context.Context, limit int) ([]holder.Entry, error)
	Rank(ctx context.Context, wallet string) (*holder.Entry, error)
	Stats(ctx context.Context) (*holder.Stats, error)
	Threshold(ctx context.Context) (float64, error)
	SetThreshold(ctx context.Context, usd float64) error
	Eligible(ctx context.Context, minDays int) ([]holder.Entry, error)
	History(ctx context.Context, wallet string, limit int) ([]*holder.Snapshot, error)
	PruneSnapshots(ctx context.Context, keepDays int) (int64, error)
	Validate(ctx context.Context) (*holder.IntegrityReport, error)
	PriceOverride(ctx context.Context) (float64, bool, error)
	SetPriceOverride(ctx context.Context, usd float64) error
	ClearPriceOverride(ctx context.Context) error
}

// SnapshotTrigger starts an immediate snapshot.
type SnapshotTrigger interface {
	TriggerNow(ctx context.Context) (*worker.SnapshotResult, error)
}

// ProviderStatus lists upstream provider health.
type ProviderStatus interface {
	All() []resilience.Status
}

// Request is one parsed chat command.
type Request struct {
	UserID  int64
	Command string
	Args    string
}

// CommandsConfig holds dependencies for Commands.
type CommandsConfig struct {
	Holders   HolderService
	Snapshots SnapshotTrigger
	Providers ProviderStatus

	AdminUserIDs     []int64
	LeaderboardLimit int
	MinimumHoldDays  int
	// RetentionDays is how many days of snapshots /cleanup keeps. Defaults to 90.
	RetentionDays int

	Logger zerolog.Logger
}

// Commands turns chat commands into reply text.
type Commands struct {
	holders   HolderService
	snapshots SnapshotTrigger
	providers ProviderStatus
	admins    map[int64]struct{}
	limit     int
	minDays   int
	retention int
	log       zerolog.Logger
}

const genericFailure = "⚠️ Something went wrong. Please try again later."

// NewCommands creates a command router.
func NewCommands(cfg CommandsConfig) *Commands {
	admins := make(map[int64]struct{}, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = struct{}{}
	}

	limit := cfg.LeaderboardLimit
	if limit <= 0 {
		limit = 50
	}

	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = holder.DefaultRetentionDays
	}

	return &Commands{
		holders:   cfg.Holders,
		snapshots: cfg.Snapshots,
		providers: cfg.Providers,
		admins:    admins,
		limit:     limit,
		minDays:   cfg.MinimumHoldDays,
		retention: retention,
		log:       cfg.Logger.With().Str("component", "commands").Logger(),
	}
}

// IsAdmin reports whether userID may run admin commands.
func (c *Commands) IsAdmin(userID int64) bool {
	_, ok := c.admins[userID]
	return ok
}

// Execute runs req and returns the reply. Failures are logged and answered with
// a user-safe message.
func (c *Commands) Execute(ctx context.Context, req Request) string {
	cmd := strings.ToLower(req.Command)
	args := strings.TrimSpace(req.Args)

	switch cmd {
	case "start":
		return c.start(req.UserID)
	case "help":
		return c.help(req.UserID)
	case "leaderboard":
		return c.leaderboard(ctx)
	case "rank":
		return c.rank(ctx, args)
	case "history":
		return c.history(ctx, args)
	case "stats":
		return c.stats(ctx)
	case "admin", "snapshot", "setthreshold", "eligible", "cleanup", "validate", "setprice":
		if !c.IsAdmin(req.UserID) {
			c.log.Warn().Int64("user_id", req.UserID).Str("command", cmd).Msg("admin command refused")
			return "⛔ This command is for administrators only."
		}
	default:
		return fmt.Sprintf("Unknown command /%s. Send /help for the list.", cmd)
	}

	switch cmd {
	case "admin":
		return c.admin()
	case "snapshot":
		return c.snapshot(ctx)
	case "setthreshold":
		return c.setThreshold(ctx, args)
	case "cleanup":
		return c.cleanup(ctx)
	case "validate":
		return c.validate(ctx)
	case "setprice":
		return c.setPrice(ctx, args)
	default:
		return c.eligible(ctx)
	}
}

func (c *Commands) start(userID int64) string {
	return "👋 <b>Welcome!</b>\n\n" +
		"I track how long every wallet has held the token without selling. " +
		"Long-term holders climb the leaderboard and qualify for rewards.\n\n" +
		c.help(userID)
}

func (c *Commands) help(userID int64) string {
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	b.WriteString("/leaderboard - top holders by days held\n")
	b.WriteString("/rank &lt;wallet&gt; - days held and rank for a wallet\n")
	b.WriteString("/history &lt;wallet&gt; - recent snapshots for a wallet\n")
	b.WriteString("/stats - holder statistics\n")
	b.WriteString("/help - this message")
	if c.IsAdmin(userID) {
		b.WriteString("\n\n/admin - admin commands")
	}
	return b.String()
}

func (c *Commands) admin() string {
	var b strings.Builder
	b.WriteString("🔧 <b>Admin</b>\n")
	b.WriteString("/snapshot - take a snapshot now\n")
	b.WriteString("/setthreshold &lt;usd&gt; - minimum USD value to rank\n")
	b.WriteString("/setprice &lt;usd|clear&gt; - manual price for the next snapshot\n")
	b.WriteString(fmt.Sprintf("/cleanup - delete snapshots older than %d days\n", c.retention))
	b.WriteString("/validate - check snapshot data consistency\n")
	b.WriteString(fmt.Sprintf("/eligible - wallets held for %d+ days", c.minDays))

	if c.providers != nil {
		if statuses := c.providers.All(); len(statuses) > 0 {
			b.WriteString("\n\n<b>Providers</b>\n")
			for _, st := range statuses {
				mark := "🟢"
				if !st.Available() {
					mark = "🔴"
				}
				line := fmt.Sprintf("%s %s (%s)", mark, st.Name, st.State)
				if st.LastError != "" {
					line += ": " + truncate(st.LastError, 80)
				}
				b.WriteString(html.EscapeString(line) + "\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) leaderboard(ctx context.Context) string {
	entries, err := c.holders.Leaderboard(ctx, c.limit)
	if err != nil {
		return c.fail("leaderboard", err)
	}
	threshold, err := c.holders.Threshold(ctx)
	if err != nil {
		return c.fail("leaderboard", err)
	}
	return formatLeaderboard(entries, threshold)
}

func (c *Commands) rank(ctx context.Context, wallet string) string {
	if wallet == "" {
		return "Usage: /rank &lt;wallet address&gt;"
	}

	entry, err := c.holders.Rank(ctx, wallet)
	switch {
	case errors.Is(err, chain.ErrInvalidWallet):
		return "❌ That does not look like a Solana wallet address."
	case errors.Is(err, holder.ErrHolderNotFound):
		return "This wallet is not holding the token in the latest snapshot."
	case err != nil:
		return c.fail("rank", err)
	}

	threshold, err := c.holders.Threshold(ctx)
	if err != nil {
		return c.fail("rank", err)
	}
	return formatRank(entry, threshold)
}

func (c *Commands) history(ctx context.Context, wallet string) string {
	if wallet == "" {
		return "Usage: /history &lt;wallet address&gt;"
	}

	snaps, err := c.holders.History(ctx, wallet, 10)
	switch {
	case errors.Is(err, chain.ErrInvalidWallet):
		return "❌ That does not look like a Solana wallet address."
	case err != nil:
		return c.fail("history", err)
	}
	return formatHistory(wallet, snaps)
}

func (c *Commands) stats(ctx context.Context) string {
	st, err := c.holders.Stats(ctx)
	if err != nil {
		return c.fail("stats", err)
	}
	return formatStats(st)
}

func (c *Commands) snapshot(ctx context.Context) string {
	if c.snapshots == nil {
		return "Snapshots are unavailable: the blockchain monitor is not running."
	}

	result, err := c.snapshots.TriggerNow(ctx)
	if errors.Is(err, worker.ErrRunInProgress) {
		return "⏳ A snapshot is already running."
	}
	if err != nil {
		return c.fail("snapshot", err)
	}
	if !result.OK() {
		c.log.Error().Err(result.Err).Msg("manual snapshot failed")
		return "❌ Snapshot failed: " + html.EscapeString(truncate(result.Err.Error(), 200))
	}

	msg := fmt.Sprintf("✅ Snapshot recorded in %s\nHolders: %d (+%d, -%d)\nPrice: %s",
		formatDuration(result.Duration), result.Summary.Holders, result.Summary.Added,
		result.Summary.Removed, formatUSD(result.PriceUSD))
	if result.PriceOverridden {
		msg += " (manual)"
	}
	if result.PriceErr != nil {
		msg += "\n⚠️ Price lookup failed, values recorded at $0."
	}
	return msg
}

func (c *Commands) setThreshold(ctx context.Context, arg string) string {
	usd, err := strconv.ParseFloat(strings.TrimPrefix(arg, "$"), 64)
	if arg == "" || err != nil {
		return "Usage: /setthreshold &lt;usd&gt;, e.g. /setthreshold 25"
	}

	if err := c.holders.SetThreshold(ctx, usd); err != nil {
		if errors.Is(err, holder.ErrInvalidThreshold) {
			return "❌ The threshold must be zero or more."
		}
		return c.fail("setthreshold", err)
	}
	return "✅ Minimum value set to " + formatUSD(usd)
}

func (c *Commands) setPrice(ctx context.Context, arg string) string {
	if arg == "" {
		usd, ok, err := c.holders.PriceOverride(ctx)
		if err != nil {
			return c.fail("setprice", err)
		}
		if !ok {
			return "No manual price is set. Usage: /setprice &lt;usd&gt; or /setprice clear"
		}
		return "Manual price for the next snapshot: " + formatPrice(usd)
	}

	if strings.EqualFold(arg, "clear") {
		if err := c.holders.ClearPriceOverride(ctx); err != nil {
			return c.fail("setprice", err)
		}
		return "✅ Manual price cleared. The next snapshot uses the market price."
	}

	usd, err := strconv.ParseFloat(strings.TrimPrefix(arg, "$"), 64)
	if err != nil {
		return "Usage: /setprice &lt;usd&gt;, e.g. /setprice 0.0125"
	}
	if err := c.holders.SetPriceOverride(ctx, usd); err != nil {
		if errors.Is(err, holder.ErrInvalidPrice) {
			return "❌ The price must be a positive number."
		}
		return c.fail("setprice", err)
	}
	return "✅ The next snapshot will use " + formatPrice(usd)
}

func (c *Commands) cleanup(ctx context.Context) string {
	deleted, err := c.holders.PruneSnapshots(ctx, c.retention)
	if err != nil {
		return c.fail("cleanup", err)
	}
	return printer.Sprintf("🧹 Deleted %d snapshot rows older than %d days.", deleted, c.retention)
}

func (c *Commands) validate(ctx context.Context) string {
	report, err := c.holders.Validate(ctx)
	if err != nil {
		return c.fail("validate", err)
	}
	if report.Valid() {
		return "✅ Snapshot data is consistent."
	}

	var b strings.Builder
	b.WriteString("⚠️ <b>Snapshot data has problems</b>\n")
	if report.HoldersWithoutSnapshots > 0 {
		b.WriteString(printer.Sprintf("%d holders have no snapshots\n", report.HoldersWithoutSnapshots))
	}
	if report.StaleHolders > 0 {
		b.WriteString(printer.Sprintf("%d holders are missing from the latest snapshot\n", report.StaleHolders))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) eligible(ctx context.Context) string {
	entries, err := c.holders.Eligible(ctx, c.minDays)
	if err != nil {
		return c.fail("eligible", err)
	}

	if len(entries) == 0 {
		return fmt.Sprintf("No wallets have held for %d days yet.", c.minDays)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🎁 <b>%d eligible wallets</b> (%d+ days)\n\n", len(entries), c.minDays))
	for _, e := range entries {
		b.WriteString(printer.Sprintf("<code>%s</code> · %d days · %s\n", e.WalletAddress, e.DaysHeld, formatUSD(e.USDValue)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) fail(cmd string, err error) string {
	c.log.Error().Err(err).Str("command", cmd).Msg("command failed")
	return genericFailure
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
