// Package telegram exposes management operations as Telegram bot commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/management"
	"solana-whale-tracker/internal/monitor"
	"solana-whale-tracker/internal/notify"
)

// DefaultVolumeDays is the /volume window when none is given.
const DefaultVolumeDays = 7

// Replies.
const (
	replyInvalidAddress = "❌ Invalid wallet address"
	replyNotAuthorized  = "⛔ Not authorized. Alerts are registered to another chat."
	replyNotRegistered  = "⛔ No chat registered yet. Send /start first."
	replyStoreDown      = "⚠️ Storage unavailable, try again later."
	replyUnknown        = "❓ Unknown command. Send /start for the list."
)

// CycleReporter describes the scheduler for /status.
type CycleReporter interface {
	Interval() time.Duration
	LastCycle() *monitor.CycleResult
}

// MessageSender sends replies.
type MessageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// Commands handles bot commands.
type Commands struct {
	svc       *management.Service
	cycles    CycleReporter
	formatter *notify.Formatter
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommands creates a command handler. cycles may be nil.
func NewCommands(svc *management.Service, cycles CycleReporter, formatter *notify.Formatter, logger *zap.Logger) *Commands {
	if formatter == nil {
		formatter = notify.NewFormatter("", "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commands{
		svc:       svc,
		cycles:    cycles,
		formatter: formatter,
		logger:    logger,
		now:       time.Now,
	}
}

// Register routes every slash command of b to the handler.
func (c *Commands) Register(b *tgbot.Bot) {
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/", tgbot.MatchTypePrefix, func(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
		c.respond(ctx, b, upd)
	})
}

func (c *Commands) respond(ctx context.Context, sender MessageSender, upd *models.Update) {
	if upd == nil || upd.Message == nil {
		return
	}
	chatID := upd.Message.Chat.ID
	reply := c.Handle(ctx, chatID, upd.Message.Text)
	if reply == "" {
		return
	}

	_, err := sender.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      reply,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: tgbot.True(),
		},
	})
	if err != nil {
		c.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Handle runs one command and returns the HTML reply. Text that is not a
// command yields an empty reply.
func (c *Commands) Handle(ctx context.Context, chatID int64, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]

	c.logger.Debug("command", zap.Int64("chat_id", chatID), zap.String("command", cmd))

	if cmd == "/start" {
		return c.start(ctx, chatID)
	}

	registered, ok, err := c.svc.Recipient(ctx)
	if err != nil {
		return c.failure(cmd, err)
	}
	if !ok {
		return replyNotRegistered
	}
	if registered != chatID {
		return replyNotAuthorized
	}

	switch cmd {
	case "/addwallet":
		return c.addWallet(ctx, args)
	case "/addexchange":
		return c.addExchange(ctx, args)
	case "/addcluster":
		return c.addCluster(ctx, args)
	case "/assigncluster":
		return c.assignCluster(ctx, args)
	case "/removecluster":
		return c.removeCluster(ctx, args)
	case "/remove":
		return c.removeWallet(ctx, args)
	case "/listwallet":
		return c.listWallets(ctx)
	case "/listcluster":
		return c.listClusters(ctx)
	case "/status":
		return c.status(ctx)
	case "/history":
		return c.history(ctx, args)
	case "/volume":
		return c.volume(ctx, args)
	default:
		return replyUnknown
	}
}

func (c *Commands) start(ctx context.Context, chatID int64) string {
	registered, ok, err := c.svc.Recipient(ctx)
	if err != nil {
		return c.failure("/start", err)
	}
	if ok && registered != chatID {
		return replyNotAuthorized
	}
	if !ok {
		if err := c.svc.RegisterRecipient(ctx, chatID); err != nil {
			return c.failure("/start", err)
		}
	}

	symbol := html.EscapeString(c.formatter.Symbol())
	return fmt.Sprintf(`🐋 <b>Whale Tracker Bot Activated!</b>

<b>Your Chat ID: %d</b>

<b>Commands:</b>
/addwallet [address] [label] - Add wallet to track
/addcluster [name] - Create wallet cluster
/assigncluster [address] [cluster] - Assign wallet to cluster
/addexchange [address] [label] - Mark wallet as exchange
/removecluster [name] - Delete cluster
/listwallet - List all tracked wallets
/listcluster - List all clusters
/remove [address] - Remove wallet
/history [address] [count] - Recent transfers
/volume [address] [days] - Transfer volume
/status - Bot status

Monitoring $%s on Solana 🚀`, chatID, symbol)
}

func (c *Commands) addWallet(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /addwallet [address] [label]"
	}
	res, err := c.svc.AddWallet(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return c.failure("/addwallet", err)
	}

	var b strings.Builder
	if res.Added {
		fmt.Fprintf(&b, "✅ Wallet added: %s", html.EscapeString(res.Label))
	} else {
		fmt.Fprintf(&b, "ℹ️ Wallet already tracked: %s", html.EscapeString(res.Label))
	}
	if res.OffCurve {
		b.WriteString("\n⚠️ Program-derived address, it cannot sign transfers itself")
	}
	return b.String()
}

func (c *Commands) addExchange(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /addexchange [address] [label]"
	}
	label, err := c.svc.AddExchangeWallet(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return c.failure("/addexchange", err)
	}
	return "✅ Exchange wallet added: " + html.EscapeString(label)
}

func (c *Commands) addCluster(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /addcluster [name]"
	}
	cl, err := c.svc.CreateCluster(ctx, strings.Join(args, " "))
	if err != nil {
		return c.failure("/addcluster", err)
	}
	return "✅ Cluster created: " + html.EscapeString(cl.Name)
}

func (c *Commands) assignCluster(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /assigncluster [address] [cluster]"
	}
	name := strings.Join(args[1:], " ")
	if err := c.svc.AssignCluster(ctx, args[0], name); err != nil {
		return c.failure("/assigncluster", err)
	}
	return "✅ Wallet assigned to cluster: " + html.EscapeString(name)
}

func (c *Commands) removeCluster(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /removecluster [name]"
	}
	name := strings.Join(args, " ")
	if err := c.svc.DeleteCluster(ctx, name); err != nil {
		return c.failure("/removecluster", err)
	}
	return "✅ Cluster removed: " + html.EscapeString(name)
}

func (c *Commands) removeWallet(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /remove [address]"
	}
	if err := c.svc.RemoveWallet(ctx, args[0]); err != nil {
		return c.failure("/remove", err)
	}
	return "✅ Wallet removed"
}

func (c *Commands) listWallets(ctx context.Context) string {
	wallets, err := c.svc.ListWallets(ctx)
	if err != nil {
		return c.failure("/listwallet", err)
	}
	if len(wallets) == 0 {
		return "No wallets tracked yet."
	}

	var b strings.Builder
	b.WriteString("<b>📋 Tracked Wallets:</b>\n\n")
	for _, w := range wallets {
		b.WriteString(html.EscapeString(w.DisplayName()))
		if w.ClusterName != nil {
			fmt.Fprintf(&b, " [%s]", html.EscapeString(*w.ClusterName))
		}
		if w.IsExchange {
			b.WriteString(" 🏦")
		}
		fmt.Fprintf(&b, "\n<code>%s</code>\n\n", w.Address)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) listClusters(ctx context.Context) string {
	clusters, err := c.svc.ListClusters(ctx)
	if err != nil {
		return c.failure("/listcluster", err)
	}
	if len(clusters) == 0 {
		return "No clusters created yet."
	}

	var b strings.Builder
	b.WriteString("<b>📁 Clusters:</b>\n\n")
	for _, cl := range clusters {
		fmt.Fprintf(&b, "%s (%d wallets)\n", html.EscapeString(cl.Name), cl.WalletCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) status(ctx context.Context) string {
	st, err := c.svc.Status(ctx)
	if err != nil {
		return c.failure("/status", err)
	}

	var b strings.Builder
	b.WriteString("<b>🤖 Bot Status</b>\n\n")
	fmt.Fprintf(&b, "📊 Tracking: %d wallets\n", st.Wallets)
	fmt.Fprintf(&b, "📁 Clusters: %d\n", st.Clusters)
	fmt.Fprintf(&b, "📈 Transactions logged: %d (%d transfers)\n", st.Transactions, st.Transfers)

	if c.cycles != nil {
		fmt.Fprintf(&b, "\n⏱ Checking wallets every %s\n", humanInterval(c.cycles.Interval()))
		if last := c.cycles.LastCycle(); last != nil {
			ago := c.now().Sub(last.StartedAt.Add(last.Duration)).Truncate(time.Second)
			fmt.Fprintf(&b, "🕒 Last cycle: %s %s ago (%d/%d wallets, %d transfers)\n",
				last.Status, ago, last.Scanned, last.Wallets, last.Events)
		}
	}

	fmt.Fprintf(&b, "\nToken: $%s\nNetwork: Solana", html.EscapeString(c.formatter.Symbol()))
	return b.String()
}

func (c *Commands) history(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /history [address] [count]"
	}
	limit := management.DefaultHistoryLimit
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return "❌ Count must be a positive number"
		}
		limit = n
	}

	records, err := c.svc.History(ctx, args[0], limit)
	if err != nil {
		return c.failure("/history", err)
	}
	if len(records) == 0 {
		return "No transfers recorded for this wallet yet."
	}

	symbol := html.EscapeString(c.formatter.Symbol())
	var b strings.Builder
	fmt.Fprintf(&b, "<b>🧾 Recent transfers</b> <code>%s</code>\n\n", domain.ShortAddress(args[0]))
	for _, r := range records {
		marker, sign := "🟢", "+"
		if r.Direction == domain.DirectionSend {
			marker, sign = "🔴", "-"
		}
		fmt.Fprintf(&b, "%s %s%s %s · %s · <a href=\"%s\">tx</a>\n",
			marker, sign, notify.FormatAmount(r.Amount), symbol,
			r.ObservedAt.UTC().Format("2006-01-02 15:04"),
			html.EscapeString(c.formatter.TxURL(r.Signature)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) volume(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /volume [address] [days]"
	}
	days := DefaultVolumeDays
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return "❌ Days must be a positive number"
		}
		days = n
	}

	since := c.now().Add(-time.Duration(days) * 24 * time.Hour)
	summary, err := c.svc.Volume(ctx, args[0], since)
	if err != nil {
		return c.failure("/volume", err)
	}

	symbol := html.EscapeString(c.formatter.Symbol())
	return fmt.Sprintf("<b>📊 Volume, last %d days</b> <code>%s</code>\n\n"+
		"🟢 Received: %s %s (%d)\n"+
		"🔴 Sent: %s %s (%d)\n"+
		"⚖️ Net: %s %s",
		days, domain.ShortAddress(args[0]),
		notify.FormatAmount(summary.Received), symbol, summary.ReceiveCount,
		notify.FormatAmount(summary.Sent), symbol, summary.SendCount,
		notify.FormatAmount(summary.Net()), symbol)
}

// failure maps an operation error to its reply.
func (c *Commands) failure(cmd string, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return replyInvalidAddress
	case errors.Is(err, domain.ErrDuplicateCluster):
		return "❌ Cluster already exists"
	case errors.Is(err, domain.ErrClusterNotFound):
		return "❌ Cluster not found"
	case errors.Is(err, domain.ErrWalletNotFound):
		return "❌ Wallet not tracked"
	case errors.Is(err, management.ErrEmptyName):
		return "❌ Cluster name is required"
	case errors.Is(err, management.ErrArchiveDisabled):
		return "❌ Transfer archive is not enabled"
	}
	c.logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
	return replyStoreDown
}

func humanInterval(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
