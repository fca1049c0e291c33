package bot

import (
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/holder"
)

// MaxMessageLength is Telegram's limit for one text message, in characters.
const MaxMessageLength = 4096

var printer = message.NewPrinter(language.English)

// SplitMessage breaks text into chunks of at most limit characters, cutting on
// line boundaries where possible. A single line longer than limit is cut mid-line.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
		}

		n := utf8.RuneCountInString(line)
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		curLen += sep + n
	}
	flush()

	return chunks
}

func formatUSD(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

// formatPrice keeps every significant digit; token prices are often well below a cent.
func formatPrice(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTokens(v float64) string {
	return printer.Sprintf("%.0f", v)
}

func formatLeaderboard(entries []holder.Entry, threshold float64) string {
	var b strings.Builder
	b.WriteString("🏆 <b>Diamond Hands Leaderboard</b>\n")
	if threshold > 0 {
		b.WriteString("Minimum value: " + formatUSD(threshold) + "\n")
	}
	b.WriteString("\n")

	if len(entries) == 0 {
		b.WriteString("No holders qualify yet.")
		return b.String()
	}

	for _, e := range entries {
		b.WriteString(printer.Sprintf("%d. <code>%s</code> · %d days · %s\n",
			e.Rank, chain.ShortAddress(e.WalletAddress), e.DaysHeld, formatUSD(e.USDValue)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRank(e *holder.Entry, threshold float64) string {
	var b strings.Builder
	b.WriteString("📊 <b>Wallet</b> <code>" + html.EscapeString(e.WalletAddress) + "</code>\n\n")
	b.WriteString(printer.Sprintf("Days held: %d\n", e.DaysHeld))
	b.WriteString("Balance: " + formatTokens(e.TokenBalance) + "\n")
	b.WriteString("Value: " + formatUSD(e.USDValue) + "\n")
	b.WriteString("Holding since: " + e.FirstSeenDate.Format("2006-01-02") + "\n")

	if e.Qualified() {
		b.WriteString(printer.Sprintf("Rank: #%d", e.Rank))
	} else {
		b.WriteString("Rank: unranked (below " + formatUSD(threshold) + ")")
	}
	return b.String()
}

func formatStats(st *holder.Stats) string {
	var b strings.Builder
	b.WriteString("📈 <b>Holder Statistics</b>\n\n")
	b.WriteString(printer.Sprintf("Holders: %d (%d ranked)\n", st.TotalHolders, st.QualifiedHolders))
	b.WriteString("Tokens tracked: " + formatTokens(st.TotalTokens) + "\n")
	b.WriteString("Total value: " + formatUSD(st.TotalUSD) + "\n")
	b.WriteString("Minimum value: " + formatUSD(st.ThresholdUSD) + "\n")
	if st.LastSnapshot != nil {
		b.WriteString("Last snapshot: " + st.LastSnapshot.Format("2006-01-02") + "\n")
	} else {
		b.WriteString("Last snapshot: never\n")
	}

	if len(st.Top) > 0 {
		b.WriteString("\n<b>Top holders</b>\n")
		for _, e := range st.Top {
			b.WriteString(printer.Sprintf("%d. <code>%s</code> · %d days\n",
				e.Rank, chain.ShortAddress(e.WalletAddress), e.DaysHeld))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(wallet string, snaps []*holder.Snapshot) string {
	var b strings.Builder
	b.WriteString("🗓 <b>History</b> <code>" + chain.ShortAddress(wallet) + "</code>\n\n")
	if len(snaps) == 0 {
		b.WriteString("No snapshots recorded.")
		return b.String()
	}
	for _, s := range snaps {
		b.WriteString(printer.Sprintf("%s · %s tokens · %s · day %d\n",
			s.SnapshotDate.Format("2006-01-02"), formatTokens(s.TokenBalance), formatUSD(s.USDValue), s.DaysHeld))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
