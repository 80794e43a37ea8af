package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/games"
	"github.com/radieske/fastround-platform/internal/round-authority/store"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

// Server expõe o histórico de rodadas, as apostas do jogador e a carteira
type Server struct {
	log   *zap.Logger
	store store.Store
	ws    http.Handler
}

// NewServer instancia a API; ws pode ser nil
func NewServer(log *zap.Logger, s store.Store, ws http.Handler) *Server {
	return &Server{log: log, store: s, ws: ws}
}

// Router retorna o roteador com as rotas REST e o canal de push
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/v1/rounds", s.listRounds)       // ?game=&mode=&page=&pageSize=
	r.Get("/v1/bets", s.listBets)           // ?userId=&page=&pageSize=
	r.Get("/v1/wallet", s.getWallet)        // ?userId=
	r.Post("/v1/wallet/deposit", s.deposit) // {"userId","amount"}
	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pagination lê page e pageSize; ausentes usam os padrões do store
func pagination(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()
	page, size = 1, store.DefaultPageSize
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}
	if v := q.Get("pageSize"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size < 1 {
			return 0, 0, errors.New("invalid pageSize")
		}
	}
	return page, size, nil
}

func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	game := r.URL.Query().Get("game")
	if _, err := games.Lookup(game); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := events.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, size, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.store.ListRounds(r.Context(), game, mode, page, size)
	if err != nil {
		s.log.Error("list rounds failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	page, size, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.store.ListBets(r.Context(), userID, page, size)
	if err != nil {
		s.log.Error("list bets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	bal, err := s.store.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events.WalletBalance{UserID: userID, Balance: bal})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req events.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.UserID == "" || !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	bal, err := s.store.Deposit(r.Context(), req.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("deposit applied", zap.String("user_id", req.UserID), zap.String("amount", req.Amount.String()))
	writeJSON(w, http.StatusOK, events.WalletBalance{UserID: req.UserID, Balance: bal})
}
