package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tradesim/internal/application/service"
	"tradesim/internal/infrastructure/websocket"
)

var errNoUser = errors.New("missing or invalid user id")

// Deps are the services and settings a Server routes to.
type Deps struct {
	Portfolio  *service.PortfolioService
	Trades     *service.TradeService
	Accounts   *service.AccountService
	Hub        *websocket.Hub
	Currency   string
	UserHeader string
}

// Server exposes the trading operations over HTTP. Identity is whatever the
// user header says; authenticating it is up to the proxy in front.
type Server struct {
	deps    Deps
	present presenter
	handler http.Handler
}

func NewServer(deps Deps) *Server {
	if deps.UserHeader == "" {
		deps.UserHeader = "X-User-ID"
	}
	s := &Server{deps: deps, present: presenter{currency: deps.Currency}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("POST /register", s.register)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("GET /portfolio", s.authed(s.portfolio))
	mux.HandleFunc("GET /history", s.authed(s.history))
	mux.HandleFunc("GET /quote", s.authed(s.quote))
	mux.HandleFunc("POST /buy", s.authed(s.buy))
	mux.HandleFunc("GET /sell", s.authed(s.sellable))
	mux.HandleFunc("POST /sell", s.authed(s.sell))
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws/trades", s.authed(s.trades))
	}
	s.handler = withRequest(mux)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID int64)

func (s *Server) authed(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(s.deps.UserHeader)), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Kind: "unauthenticated", Message: errNoUser.Error()})
			return
		}
		h(w, r, id)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Accounts.Register(r.Context(), r.FormValue("username"), r.FormValue("password"), r.FormValue("confirmation"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userDTO{UserID: id})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Accounts.Authenticate(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userDTO{UserID: id})
}

func (s *Server) portfolio(w http.ResponseWriter, r *http.Request, userID int64) {
	pf, err := s.deps.Portfolio.GetPortfolio(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.portfolio(pf))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, userID int64) {
	txns, err := s.deps.Portfolio.GetHistory(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionDTO, 0, len(txns))
	for _, t := range txns {
		out = append(out, s.present.transaction(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request, _ int64) {
	q, err := s.deps.Accounts.Quote(r.Context(), r.FormValue("symbol"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.quote(q))
}

func (s *Server) buy(w http.ResponseWriter, r *http.Request, userID int64) {
	ev, err := s.deps.Trades.Buy(r.Context(), userID, r.FormValue("symbol"), r.FormValue("shares"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.trade(ev))
}

func (s *Server) sellable(w http.ResponseWriter, r *http.Request, userID int64) {
	symbols, err := s.deps.Portfolio.GetSellableSymbols(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"symbols": symbols})
}

func (s *Server) sell(w http.ResponseWriter, r *http.Request, userID int64) {
	ev, err := s.deps.Trades.Sell(r.Context(), userID, r.FormValue("symbol"), r.FormValue("shares"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.trade(ev))
}

func (s *Server) trades(w http.ResponseWriter, r *http.Request, userID int64) {
	if err := s.deps.Hub.Serve(w, r, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("websocket upgrade failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}
