package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mdcollector/internal/domain"
)

func TestMarketID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTC/USDT:USDT", "BTCUSDT"},
		{"ETH/USDT", "ETHUSDT"},
		{"btc/usdt:usdt", "BTCUSDT"},
		{"SOLUSDT", "SOLUSDT"},
		{" 1000PEPE/USDT:USDT ", "1000PEPEUSDT"},
	}
	for _, c := range cases {
		if got := MarketID(c.in); got != c.want {
			t.Errorf("MarketID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestKlineInterval(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"1m", "1"},
		{"5m", "5"},
		{"1h", "60"},
		{"4h", "240"},
		{"1d", "D"},
	}
	for _, c := range cases {
		got, err := klineInterval(c.in)
		if err != nil {
			t.Fatalf("klineInterval(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("klineInterval(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := klineInterval("7m"); err == nil {
		t.Error("klineInterval(7m) should fail")
	}
}

func TestMergeTickerAppliesDeltas(t *testing.T) {
	snapshot := tickerData{
		LastPrice:    "45000.5",
		Bid1Price:    "45000",
		Bid1Size:     "2",
		Ask1Price:    "45001",
		Ask1Size:     "3",
		HighPrice24h: "46000",
		LowPrice24h:  "44000",
		PrevPrice24h: "44500",
		Volume24h:    "1000",
		Turnover24h:  "45000000",
	}
	full := mergeTicker(domain.Ticker{}, "BTC/USDT:USDT", 1700000000000, snapshot)

	if full.Last != 45000.5 || full.Bid != 45000 || full.Ask != 45001 {
		t.Fatalf("snapshot merge wrong: %+v", full)
	}
	if full.Open != 44500 || full.Close != 45000.5 {
		t.Fatalf("open/close wrong: %+v", full)
	}

	// delta frames only carry the changed fields
	delta := tickerData{LastPrice: "45100"}
	merged := mergeTicker(full, "BTC/USDT:USDT", 1700000001000, delta)

	if merged.Last != 45100 {
		t.Errorf("Last = %v, want 45100", merged.Last)
	}
	if merged.Bid != 45000 || merged.High != 46000 || merged.BaseVolume != 1000 {
		t.Errorf("delta clobbered unchanged fields: %+v", merged)
	}
	if merged.Timestamp != 1700000001000 {
		t.Errorf("Timestamp = %d", merged.Timestamp)
	}
}

func TestParseTrades(t *testing.T) {
	payload := json.RawMessage(`[
		{"T":1700000000100,"s":"BTCUSDT","S":"Buy","v":"0.5","p":"45000.1","i":"trade-1"},
		{"T":1700000000200,"s":"BTCUSDT","S":"Sell","v":"1.25","p":"44999.9","i":"trade-2"}
	]`)

	trades, err := parseTrades("BTC/USDT:USDT", payload)
	if err != nil {
		t.Fatalf("parseTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	first := trades[0]
	if first.ID != "trade-1" || first.Symbol != "BTC/USDT:USDT" {
		t.Errorf("identity wrong: %+v", first)
	}
	if first.Side != "buy" || first.Price != 45000.1 || first.Amount != 0.5 {
		t.Errorf("fields wrong: %+v", first)
	}
	if trades[1].Side != "sell" {
		t.Errorf("Side = %q, want sell", trades[1].Side)
	}
}

func TestParseTradesSkipsMissingID(t *testing.T) {
	payload := json.RawMessage(`[{"T":1,"S":"Buy","v":"1","p":"10","i":""}]`)
	trades, err := parseTrades("X/USDT:USDT", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(trades))
	}
}

func TestParseCandles(t *testing.T) {
	payload := json.RawMessage(`[
		{"start":1700000040000,"open":"45000","high":"45100","low":"44950","close":"45050","volume":"12.5","confirm":false}
	]`)

	candles, err := parseCandles("BTC/USDT:USDT", "1m", payload)
	if err != nil {
		t.Fatalf("parseCandles: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(candles))
	}
	c := candles[0]
	if c.Timestamp != 1700000040000 || c.Timeframe != "1m" {
		t.Errorf("bar identity wrong: %+v", c)
	}
	if c.Open != 45000 || c.High != 45100 || c.Low != 44950 || c.Close != 45050 || c.Volume != 12.5 {
		t.Errorf("ohlcv wrong: %+v", c)
	}
}

func TestWatchOrderBookSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/orderbook" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q", got)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{
			"s":"BTCUSDT",
			"b":[["45000","1.5"],["44999","2"]],
			"a":[["45001","0.7"]],
			"ts":1700000000500,"u":42
		},"time":1700000000600}`))
	}))
	defer srv.Close()

	c := New("ws://unused", srv.URL)
	ob, err := c.WatchOrderBook(context.Background(), "BTC/USDT:USDT", 50)
	if err != nil {
		t.Fatalf("WatchOrderBook: %v", err)
	}
	if ob.Symbol != "BTC/USDT:USDT" || ob.Timestamp != 1700000000500 || ob.Nonce != 42 {
		t.Errorf("snapshot identity wrong: %+v", ob)
	}
	if len(ob.Bids) != 2 || len(ob.Asks) != 1 {
		t.Fatalf("depth wrong: %d bids, %d asks", len(ob.Bids), len(ob.Asks))
	}
	if ob.Bids[0].Price != 45000 || ob.Bids[0].Size != 1.5 {
		t.Errorf("best bid wrong: %+v", ob.Bids[0])
	}
}

func TestFetchFundingAndMarkPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/tickers" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[{
			"symbol":"BTCUSDT",
			"fundingRate":"0.0001",
			"nextFundingTime":"1700028800000",
			"markPrice":"45000.25",
			"indexPrice":"45000.10"
		}]},"time":1700000000700}`))
	}))
	defer srv.Close()

	c := New("ws://unused", srv.URL)
	ctx := context.Background()

	fr, err := c.FetchFundingRate(ctx, "BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("FetchFundingRate: %v", err)
	}
	if fr.Rate != 0.0001 || fr.FundingTimestamp != 1700028800000 || fr.Timestamp != 1700000000700 {
		t.Errorf("funding wrong: %+v", fr)
	}

	mp, err := c.FetchMarkPrice(ctx, "BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("FetchMarkPrice: %v", err)
	}
	if mp.MarkPrice != 45000.25 || mp.IndexPrice != 45000.10 {
		t.Errorf("mark price wrong: %+v", mp)
	}
}

func TestRestErrorCodeSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	}))
	defer srv.Close()

	c := New("ws://unused", srv.URL)
	if _, err := c.FetchMarkPrice(context.Background(), "BTC/USDT:USDT"); err == nil {
		t.Fatal("expected error for non-zero retCode")
	}
}

func TestWatchFailsBeforeStart(t *testing.T) {
	c := New("", "")
	if _, err := c.WatchTicker(context.Background(), "BTC/USDT:USDT"); err == nil {
		t.Fatal("WatchTicker before Start should fail")
	}
}

func TestDispatchRoutesAndDropsOldest(t *testing.T) {
	c := New("", "")
	c.topics["tickers.BTCUSDT"] = make(chan wsEvent, 1)

	frame := func(last string, ts int64) []byte {
		b, _ := json.Marshal(map[string]any{
			"topic": "tickers.BTCUSDT",
			"type":  "delta",
			"ts":    ts,
			"data":  map[string]string{"lastPrice": last},
		})
		return b
	}
	c.dispatch(frame("45000", 1))
	c.dispatch(frame("45001", 2)) // buffer full, oldest dropped

	ev := <-c.topics["tickers.BTCUSDT"]
	if ev.Ts != 2 {
		t.Fatalf("got ts %d, want the newest frame", ev.Ts)
	}
	var d tickerData
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		t.Fatal(err)
	}
	if d.LastPrice != "45001" {
		t.Errorf("LastPrice = %q", d.LastPrice)
	}
}
