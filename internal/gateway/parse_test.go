package gateway

import (
	"testing"
)

func TestParsePayloadFallbackChain(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		wantErr bool
		symbol  string
		typ     string
		amount  float64
	}{
		{
			name:    "strict_json",
			payload: `{"type":"entry","symbol":"BTCUSDT","side":"long","amount":250}`,
			symbol:  "BTCUSDT",
			typ:     "entry",
			amount:  250,
		},
		{
			name:    "quoted_json_string",
			payload: `"{\"type\":\"entry\",\"symbol\":\"ETHUSDT\",\"side\":\"short\"}"`,
			symbol:  "ETHUSDT",
			typ:     "entry",
		},
		{
			name:    "single_quoted",
			payload: `'{"type":"tp1","symbol":"SOLUSDT"}'`,
			symbol:  "SOLUSDT",
			typ:     "tp1",
		},
		{
			name:    "embedded_brace_span",
			payload: `alert fired: {"type":"close","symbol":"XRPUSDT","side":"long"} at 12:00`,
			symbol:  "XRPUSDT",
			typ:     "close",
		},
		{
			name:    "form_encoded",
			payload: `type=entry&symbol=DOGEUSDT&side=long&amount=50`,
			symbol:  "DOGEUSDT",
			typ:     "entry",
			amount:  50,
		},
		{
			name:    "colon_delimited",
			payload: "type: sl1, symbol: ADAUSDT, side: short",
			symbol:  "ADAUSDT",
			typ:     "sl1",
		},
		{
			name:    "amount_as_string",
			payload: `{"type":"entry","symbol":"BTCUSDT","amount":"123.5"}`,
			symbol:  "BTCUSDT",
			typ:     "entry",
			amount:  123.5,
		},
		{
			name:    "garbage",
			payload: "hello world",
			wantErr: true,
		},
		{
			name:    "empty",
			payload: "",
			wantErr: true,
		},
		{
			name:    "json_missing_symbol",
			payload: `{"type":"entry"}`,
			wantErr: true,
		},
		{
			name:    "unbalanced_brace",
			payload: `{"type":"entry","symbol":"BTCUSDT"`,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParsePayload([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", a)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Symbol != tc.symbol {
				t.Errorf("symbol = %q, want %q", a.Symbol, tc.symbol)
			}
			if a.Type != tc.typ {
				t.Errorf("type = %q, want %q", a.Type, tc.typ)
			}
			if tc.amount != 0 && a.Amount != tc.amount {
				t.Errorf("amount = %g, want %g", a.Amount, tc.amount)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"btcusdt", "BTCUSDT"},
		{"BTCUSDT.P", "BTCUSDT"},
		{"ETHUSDTPERP", "ETHUSDT"},
		{"SOLUSDT_UMCBL", "SOLUSDT"},
		{"ada-usdt", "ADAUSDT"},
		{" xrp/usdt ", "XRPUSDT"},
		{"BTC-USDT-SWAP", "BTCUSDT"},
	}
	for _, tc := range testCases {
		if got := NormalizeSymbol(tc.in); got != tc.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeSideDefaultsLong(t *testing.T) {
	testCases := map[string]string{
		"long":  "long",
		"short": "short",
		"sell":  "short",
		"":      "long",
		"buy":   "long",
		"junk":  "long",
	}
	for in, want := range testCases {
		if got := string(NormalizeSide(in)); got != want {
			t.Errorf("NormalizeSide(%q) = %q, want %q", in, got, want)
		}
	}
}
