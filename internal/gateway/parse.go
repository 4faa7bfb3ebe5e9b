package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantfold/signal-engine/internal/exchange"
)

// Alert is the normalized form of one inbound payload. Ephemeral: it lives
// only through admission and routing.
type Alert struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount,omitempty"`
	Timeframe string  `json:"timeframe,omitempty"`
}

// rawAlert tolerates the sloppy field types upstream senders produce.
type rawAlert struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Amount    any    `json:"amount"`
	Timeframe string `json:"timeframe"`
}

// contractSuffixes are venue suffixes stripped during symbol normalization.
var contractSuffixes = []string{".P", "PERP", "_UMCBL", "_DMCBL", "_SPBL", "-SWAP"}

// ParsePayload attempts structured extraction with a fallback chain, stopping
// at the first success: strict JSON, one stripped layer of surrounding
// quotes, the first balanced curly-brace span, then loose key:value text.
func ParsePayload(raw []byte) (Alert, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return Alert{}, fmt.Errorf("empty payload")
	}

	if a, err := parseJSON(s); err == nil {
		return a, nil
	}

	// Some senders double-encode the JSON object as a string.
	if stripped, ok := stripQuotes(s); ok {
		if a, err := parseJSON(stripped); err == nil {
			return a, nil
		}
		s = stripped
	}

	if span, ok := braceSpan(s); ok {
		if a, err := parseJSON(span); err == nil {
			return a, nil
		}
	}

	if a, err := parseKeyValue(s); err == nil {
		return a, nil
	}

	return Alert{}, fmt.Errorf("unparseable payload")
}

func parseJSON(s string) (Alert, error) {
	var r rawAlert
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Alert{}, err
	}
	if r.Type == "" || r.Symbol == "" {
		return Alert{}, fmt.Errorf("missing type or symbol")
	}
	a := Alert{
		Type:      strings.TrimSpace(r.Type),
		Symbol:    r.Symbol,
		Side:      r.Side,
		Timeframe: strings.TrimSpace(r.Timeframe),
	}
	switch v := r.Amount.(type) {
	case float64:
		a.Amount = v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			a.Amount = f
		}
	}
	return a, nil
}

// stripQuotes removes one layer of matching surrounding quote characters,
// unescaping if the inner text is a JSON-escaped string.
func stripQuotes(s string) (string, bool) {
	if len(s) < 2 {
		return s, false
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		inner := s[1 : len(s)-1]
		if first == '"' && strings.Contains(inner, `\"`) {
			var unescaped string
			if err := json.Unmarshal([]byte(s), &unescaped); err == nil {
				return unescaped, true
			}
		}
		return inner, true
	}
	return s, false
}

// braceSpan extracts the first balanced {...} span, ignoring braces inside
// string literals.
func braceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// parseKeyValue handles form-encoded and loosely-delimited key:value text,
// e.g. "type=entry&symbol=BTCUSDT" or "type: entry, symbol: BTCUSDT".
func parseKeyValue(s string) (Alert, error) {
	fields := map[string]string{}
	for _, chunk := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '&' || r == ',' || r == '\n' || r == ';'
	}) {
		var k, v string
		if i := strings.IndexAny(chunk, "=:"); i >= 0 {
			k, v = chunk[:i], chunk[i+1:]
		} else {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	if fields["type"] == "" || fields["symbol"] == "" {
		return Alert{}, fmt.Errorf("missing type or symbol")
	}
	a := Alert{
		Type:      fields["type"],
		Symbol:    fields["symbol"],
		Side:      fields["side"],
		Timeframe: fields["timeframe"],
	}
	if v := fields["amount"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			a.Amount = f
		}
	}
	return a, nil
}

// NormalizeSymbol uppercases, strips venue contract suffixes, then removes
// any remaining non-alphanumeric characters.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range contractSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeSide defaults to long on absent or unrecognized input.
func NormalizeSide(side string) exchange.Side {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "short", "sell":
		return exchange.Short
	default:
		return exchange.Long
	}
}
