// Package notify renders transfer alerts and delivers them to the registered recipient.
package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"solana-whale-tracker/internal/domain"
)

// Defaults.
const (
	DefaultTokenSymbol   = "HONK"
	DefaultExplorerTxURL = "https://solscan.io/tx/%s"

	amountPrecision = 3
)

// Formatter renders transfer events as Telegram HTML messages.
type Formatter struct {
	symbol        string
	explorerTxURL string // printf pattern with one %s for the signature
}

// NewFormatter creates a formatter. Empty arguments fall back to the defaults.
func NewFormatter(symbol, explorerTxURL string) *Formatter {
	if symbol == "" {
		symbol = DefaultTokenSymbol
	}
	if explorerTxURL == "" || !strings.Contains(explorerTxURL, "%s") {
		explorerTxURL = DefaultExplorerTxURL
	}
	return &Formatter{symbol: symbol, explorerTxURL: explorerTxURL}
}

// Symbol returns the token symbol used in messages.
func (f *Formatter) Symbol() string {
	return f.symbol
}

// Format renders one alert.
func (f *Formatter) Format(ev domain.TransferEvent, wallet *domain.WalletInfo) string {
	var b strings.Builder

	header := "🟢 RECEIVED"
	if ev.Direction == domain.DirectionSend {
		header = "🔴 SENT"
	}

	name := domain.ShortAddress(ev.WalletAddress)
	exchange := false
	var cluster string
	if wallet != nil {
		name = wallet.DisplayName()
		exchange = wallet.IsExchange
		if wallet.ClusterName != nil {
			cluster = *wallet.ClusterName
		}
	}

	b.WriteString("<b>")
	b.WriteString(header)
	b.WriteString(" $")
	b.WriteString(html.EscapeString(f.symbol))
	if exchange {
		b.WriteString(" 🏦 EXCHANGE")
	}
	b.WriteString("</b>\n")
	if cluster != "" {
		fmt.Fprintf(&b, "[%s]\n", html.EscapeString(cluster))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "💼 Wallet: <code>%s</code>\n", html.EscapeString(name))
	fmt.Fprintf(&b, "💰 Amount: %s %s\n", FormatAmount(ev.Amount), html.EscapeString(f.symbol))
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">View Transaction</a>", html.EscapeString(f.TxURL(ev.Signature)))

	return b.String()
}

// TxURL returns the explorer link of a signature.
func (f *Formatter) TxURL(signature string) string {
	return fmt.Sprintf(f.explorerTxURL, signature)
}

// FormatAmount renders a token amount with comma thousands separators and
// at most three fraction digits, trailing zeros dropped.
func FormatAmount(d decimal.Decimal) string {
	s := d.Round(amountPrecision).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	grouped := groupThousands(intPart)
	if hasFrac {
		return sign + grouped + "." + frac
	}
	return sign + grouped
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
