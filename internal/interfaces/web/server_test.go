package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/application/service"
	"tradesim/internal/domain/model"
	"tradesim/internal/infrastructure/quote"
	"tradesim/internal/infrastructure/storage"
	"tradesim/internal/infrastructure/websocket"
)

// switchable fails every lookup while down is set.
type switchable struct {
	port.QuoteProvider
	down bool
}

func (s *switchable) Lookup(ctx context.Context, symbol string) (*model.Quote, error) {
	if s.down {
		return nil, errors.New("upstream timeout")
	}
	return s.QuoteProvider.Lookup(ctx, symbol)
}

type testEnv struct {
	handler http.Handler
	quotes  *switchable
	hub     *websocket.Hub
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := storage.NewMemory()
	quotes := &switchable{QuoteProvider: quote.NewStatic(
		model.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.NewFromInt(100)},
		model.Quote{Symbol: "MSFT", Name: "Microsoft Corp.", Price: decimal.NewFromInt(300)},
	)}
	hub := websocket.NewHub()
	srv := NewServer(Deps{
		Portfolio: service.NewPortfolioService(ledger, quotes, 2),
		Trades: service.NewTradeService(service.TradeServiceDeps{
			Ledger:      ledger,
			Quotes:      quotes,
			Events:      hub,
			LockTimeout: time.Second,
		}),
		Accounts: service.NewAccountService(ledger, quotes, decimal.NewFromInt(10000), 4),
		Hub:      hub,
		Currency: "USD",
	})
	return &testEnv{handler: srv.Handler(), quotes: quotes, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, userID int64, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if method == http.MethodPost {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		if form != nil {
			path += "?" + form.Encode()
		}
		req = httptest.NewRequest(method, path, nil)
	}
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, name string) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/register", 0, url.Values{"username": {name}, "password": {"pw"}, "confirmation": {"pw"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body)
	}
	var u userDTO
	decode(t, rec, &u)
	return u.UserID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", rec.Code, status, rec.Body)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Error != code {
		t.Errorf("error code = %q, want %q", body.Error, code)
	}
}

func TestTradingFlow(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "alice")

	rec := e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"aapl"}, "shares": {"10"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy status = %d body=%s", rec.Code, rec.Body)
	}
	var bought tradeDTO
	decode(t, rec, &bought)
	if bought.Message != "Stock purchased!" || bought.Transaction.Shares != 10 || bought.Cash.Display != "$9,000.00" {
		t.Errorf("unexpected buy response %+v", bought)
	}

	rec = e.do(t, http.MethodPost, "/sell", id, url.Values{"symbol": {"AAPL"}, "shares": {"4"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("sell status = %d body=%s", rec.Code, rec.Body)
	}
	var sold tradeDTO
	decode(t, rec, &sold)
	if sold.Message != "Sold successfully!" || sold.Transaction.Side != model.SideSell || sold.Transaction.Shares != -4 {
		t.Errorf("unexpected sell response %+v", sold)
	}

	rec = e.do(t, http.MethodGet, "/portfolio", id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio status = %d body=%s", rec.Code, rec.Body)
	}
	var pf portfolioDTO
	decode(t, rec, &pf)
	if len(pf.Holdings) != 1 || pf.Holdings[0].Shares != 6 || pf.Holdings[0].Name != "Apple Inc." {
		t.Fatalf("unexpected holdings %+v", pf.Holdings)
	}
	if pf.Cash.Display != "$9,400.00" || pf.GrandTotal.Display != "$10,000.00" {
		t.Errorf("unexpected totals cash=%s total=%s", pf.Cash.Display, pf.GrandTotal.Display)
	}

	rec = e.do(t, http.MethodGet, "/history", id, nil)
	var hist []transactionDTO
	decode(t, rec, &hist)
	if len(hist) != 2 || hist[0].Side != model.SideSell || hist[1].Side != model.SideBuy {
		t.Errorf("unexpected history %+v", hist)
	}

	rec = e.do(t, http.MethodGet, "/sell", id, nil)
	var sellable map[string][]string
	decode(t, rec, &sellable)
	if got := sellable["symbols"]; len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("unexpected sellable symbols %v", got)
	}
}

func TestResponseHeaders(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	h := rec.Header()
	if h.Get("Cache-Control") != "no-cache, no-store, must-revalidate" || h.Get("Expires") != "0" || h.Get("Pragma") != "no-cache" {
		t.Errorf("missing no-cache headers: %v", h)
	}
	if h.Get(requestIDHeader) == "" {
		t.Errorf("missing request id")
	}
}

func TestMissingIdentity(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/portfolio", "/history", "/sell"} {
		if rec := e.do(t, http.MethodGet, path, 0, nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/portfolio", nil)
	req.Header.Set("X-User-ID", "abc")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("non-numeric id status = %d, want 401", rec.Code)
	}
}

func TestTradeErrors(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "bob")

	expectError(t, e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {""}, "shares": {"1"}}), http.StatusBadRequest, "empty_symbol")
	expectError(t, e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"AAPL"}, "shares": {"1.5"}}), http.StatusBadRequest, "invalid_shares")
	expectError(t, e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"AAPL"}}), http.StatusBadRequest, "missing_shares")
	expectError(t, e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"ZZZZ"}, "shares": {"1"}}), http.StatusBadRequest, "unknown_symbol")
	expectError(t, e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"MSFT"}, "shares": {"34"}}), http.StatusForbidden, "insufficient_funds")
	expectError(t, e.do(t, http.MethodPost, "/sell", id, url.Values{"symbol": {"AAPL"}, "shares": {"1"}}), http.StatusBadRequest, "insufficient_shares")

	e.quotes.down = true
	expectError(t, e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"AAPL"}, "shares": {"1"}}), http.StatusBadGateway, "quote_unavailable")
	expectError(t, e.do(t, http.MethodGet, "/quote", id, url.Values{"symbol": {"AAPL"}}), http.StatusBadGateway, "quote_unavailable")
}

func TestQuote(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "carol")
	rec := e.do(t, http.MethodGet, "/quote", id, url.Values{"symbol": {"msft"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("quote status = %d body=%s", rec.Code, rec.Body)
	}
	var q quoteDTO
	decode(t, rec, &q)
	if q.Symbol != "MSFT" || q.Price.Display != "$300.00" {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestAccounts(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "dave")

	expectError(t, e.do(t, http.MethodPost, "/register", 0, url.Values{"username": {"dave"}, "password": {"x"}, "confirmation": {"x"}}), http.StatusConflict, "username_taken")
	expectError(t, e.do(t, http.MethodPost, "/register", 0, url.Values{"username": {"erin"}, "password": {"x"}, "confirmation": {"y"}}), http.StatusBadRequest, "password_mismatch")
	expectError(t, e.do(t, http.MethodPost, "/login", 0, url.Values{"username": {"dave"}, "password": {"wrong"}}), http.StatusForbidden, "invalid_credentials")

	rec := e.do(t, http.MethodPost, "/login", 0, url.Values{"username": {"dave"}, "password": {"pw"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body)
	}
	var u userDTO
	decode(t, rec, &u)
	if u.UserID != id {
		t.Errorf("login id = %d, want %d", u.UserID, id)
	}
}

func TestTradeEventsOverWebsocket(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "frank")

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	header := http.Header{}
	header.Set("X-User-ID", strconv.FormatInt(id, 10))
	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/trades", header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Clients(id) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := e.do(t, http.MethodPost, "/buy", id, url.Values{"symbol": {"MSFT"}, "shares": {"2"}}); rec.Code != http.StatusOK {
		t.Fatalf("buy status = %d body=%s", rec.Code, rec.Body)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev model.TradeEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Side != model.SideBuy || ev.Transaction.Symbol != "MSFT" || !ev.Cash.Equal(decimal.NewFromInt(9400)) {
		t.Errorf("unexpected event %+v", ev)
	}
}
