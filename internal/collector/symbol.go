package collector

import "strings"

// DefaultQuote is the quote currency appended to fallback trading pairs.
const DefaultQuote = "USDT"

// builtinSymbolOverrides maps coin ids whose base symbol is not the
// uppercased id. Only entries verified against the exchange belong here.
var builtinSymbolOverrides = map[string]string{
	"bitcoin": "BTC",
}

// BinanceSymbol derives the fallback provider's trading pair for a coin id.
//
// The base symbol comes from overrides, then the built-in table, and
// otherwise is the uppercased coin id. The quote (DefaultQuote when empty)
// is appended:
//
//	bitcoin  -> BTCUSDT
//	solana   -> SOLANAUSDT   (no such pair; the fetch fails)
//	ethereum -> ETHEREUMUSDT (no such pair unless overridden to ETH)
//
// The uppercase heuristic misresolves every coin whose ticker differs from
// its id. Callers that need those coins must supply an override table.
func BinanceSymbol(coinID, quote string, overrides map[string]string) string {
	if quote == "" {
		quote = DefaultQuote
	}
	id := strings.ToLower(strings.TrimSpace(coinID))
	base, ok := overrides[id]
	if !ok {
		base, ok = builtinSymbolOverrides[id]
	}
	if !ok {
		base = id
	}
	return strings.ToUpper(base) + strings.ToUpper(quote)
}
