package rootchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RequestIDHeader = "X-Request-ID"
	ShutdownTimeout = 5 * time.Second
)

// Service exposes a RootChain over HTTP
type Service struct {
	router   *mux.Router
	rc       *RootChain
	tickRate time.Duration
}

// NewService creates the HTTP service. A positive tickRate advances logical time
// from the wall clock while Run is active.
func NewService(rc *RootChain, tickRate time.Duration) *Service {
	s := &Service{
		router:   mux.NewRouter(),
		rc:       rc,
		tickRate: tickRate,
	}
	s.setupRoutes()
	return s
}

// Router returns the HTTP router for testing
func (s *Service) Router() *mux.Router {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.Use(requestID)
	s.router.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	s.router.HandleFunc("/blocks", s.handleSubmitBlock).Methods("POST")
	s.router.HandleFunc("/blocks/current", s.handleCurrentBlock).Methods("GET")
	s.router.HandleFunc("/blocks/{num:[0-9]+}", s.handleGetBlock).Methods("GET")
	s.router.HandleFunc("/exits", s.handleStartExit).Methods("POST")
	s.router.HandleFunc("/exits/finalize", s.handleFinalize).Methods("POST")
	s.router.HandleFunc("/exits/{priority}", s.handleGetExit).Methods("GET")
	s.router.HandleFunc("/balance/{addr}", s.handleBalance).Methods("GET")
	s.router.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")
	s.router.HandleFunc("/child-chain-balance", s.handleChildChainBalance).Methods("GET")
	s.router.HandleFunc("/priority", s.handlePriority).Methods("POST")
	s.router.HandleFunc("/max/{a}/{b}", s.handleMax).Methods("GET")
	s.router.HandleFunc("/clock", s.handleGetClock).Methods("GET")
	s.router.HandleFunc("/clock", s.handleAdvanceClock).Methods("POST")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// requestID tags every request with an id, reusing the caller's if present
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		logger.Debug("Request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Run serves on port until ctx is cancelled, running the clock ticker alongside
func (s *Service) Run(ctx context.Context, port int) error {
	if s.tickRate > 0 {
		go s.clockTicker(ctx)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("Root chain service starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		logger.Info("Root chain service stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

// clockTicker moves logical time up to the wall clock periodically
func (s *Service) clockTicker(ctx context.Context) {
	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			now, err := s.rc.Now()
			if err != nil {
				logger.Warn("Clock tick failed", "err", err)
				continue
			}
			wall := uint64(t.Unix())
			if wall <= now {
				continue
			}
			if err := s.rc.AdvanceTime(wall); err != nil {
				logger.Warn("Clock tick failed", "err", err)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "err", err)
	}
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind string) int {
	switch kind {
	case KindInvalidOwner, KindUnauthorized:
		return http.StatusForbidden
	case KindAlreadyExited, KindDoubleSpend:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientBond, KindInvalidProof, KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := ErrorKind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "err", err)
	}
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: err.Error(), Kind: KindInvalidRequest})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseAmount parses a decimal 256-bit value; empty means zero
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", s)
	}
	return v, nil
}

func (s *Service) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req protocol.DepositRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		badRequest(w, err)
		return
	}
	num, err := s.rc.Deposit(req.From, req.TxBytes, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.DepositResponse{BlockNumber: num})
}

func (s *Service) handleSubmitBlock(w http.ResponseWriter, r *http.Request) {
	var req protocol.SubmitBlockRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	num, err := s.rc.SubmitBlock(req.From, req.Root)
	if err != nil {
		writeError(w, err)
		return
	}
	blk, err := s.rc.ChildBlock(num)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blockResponse(blk))
}

func blockResponse(blk *protocol.ChildBlock) protocol.BlockResponse {
	return protocol.BlockResponse{
		Number:    blk.Number,
		Root:      blk.Root,
		CreatedAt: blk.CreatedAt,
		Deposit:   blk.Deposit,
	}
}

func (s *Service) handleCurrentBlock(w http.ResponseWriter, r *http.Request) {
	child, err := s.rc.CurrentChildBlock()
	if err != nil {
		writeError(w, err)
		return
	}
	deposit, err := s.rc.CurrentDepositBlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.CurrentBlockResponse{CurrentChildBlock: child, CurrentDepositBlock: deposit})
}

func (s *Service) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	num, err := strconv.ParseUint(mux.Vars(r)["num"], 10, 64)
	if err != nil {
		badRequest(w, err)
		return
	}
	blk, err := s.rc.ChildBlock(num)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blockResponse(blk))
}

func (s *Service) handleStartExit(w http.ResponseWriter, r *http.Request) {
	var req protocol.StartExitRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	bond, err := parseAmount(req.Bond)
	if err != nil {
		badRequest(w, err)
		return
	}
	key, err := s.rc.StartExit(ExitRequest{
		Caller:  req.From,
		Pos:     req.TxPos,
		TxBytes: req.TxBytes,
		Proof:   req.Proof,
		Sigs:    req.Sigs,
		Bond:    bond,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	exit, err := s.rc.GetExit(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewExitResponse(key.Dec(), exit))
}

func (s *Service) handleGetExit(w http.ResponseWriter, r *http.Request) {
	key, err := protocol.ParsePriority(mux.Vars(r)["priority"])
	if err != nil {
		badRequest(w, err)
		return
	}
	exit, err := s.rc.GetExit(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewExitResponse(key.Dec(), exit))
}

func (s *Service) handleFinalize(w http.ResponseWriter, r *http.Request) {
	report, err := s.rc.FinalizeExits()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FinalizeResponse{
		Finalized: decimalKeys(report.Finalized),
		Cancelled: decimalKeys(report.Cancelled),
		Credited:  report.Credited.Dec(),
		Halt:      string(report.Halt),
		Remaining: report.Remaining,
	})
}

func decimalKeys(keys []*uint256.Int) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = key.Dec()
	}
	return out
}

func (s *Service) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	if !common.IsHexAddress(addr) {
		badRequest(w, errors.Errorf("invalid address %q", addr))
		return
	}
	bal, err := s.rc.BalanceOf(common.HexToAddress(addr))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: bal.Dec()})
}

func (s *Service) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req protocol.WithdrawRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	amount, err := s.rc.Withdraw(req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: amount.Dec()})
}

func (s *Service) handleChildChainBalance(w http.ResponseWriter, r *http.Request) {
	ccb, err := s.rc.ChildChainBalance()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: ccb.Dec()})
}

func (s *Service) handlePriority(w http.ResponseWriter, r *http.Request) {
	var req protocol.PriorityRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	p, err := s.rc.CalculatePriority(req.TxBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.PriorityResponse{Priority: p.Dec()})
}

func (s *Service) handleMax(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a, err := protocol.ParsePriority(vars["a"])
	if err != nil {
		badRequest(w, err)
		return
	}
	b, err := protocol.ParsePriority(vars["b"])
	if err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: protocol.Max(a, b).Dec()})
}

func (s *Service) handleGetClock(w http.ResponseWriter, r *http.Request) {
	now, err := s.rc.Now()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.ClockResponse{Time: now})
}

func (s *Service) handleAdvanceClock(w http.ResponseWriter, r *http.Request) {
	var req protocol.ClockRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.rc.AdvanceTime(req.Time); err != nil {
		writeError(w, err)
		return
	}
	s.handleGetClock(w, r)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"pending": s.rc.QueueLen(),
	})
}
