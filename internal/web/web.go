package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"code.dogecoin.org/airdrop/internal/airdrop"
	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/internal/spec"
	"code.dogecoin.org/airdrop/internal/store"
	"code.dogecoin.org/governor"
)

const defaultAttemptLimit = 100

// Run is the job being observed.
type Run interface {
	RunID() string
	Status() airdrop.Status
}

// AttemptStore is the journal, as seen by the API.
type AttemptStore interface {
	Summary(runID string) ([]spec.OutcomeCount, error)
	Attempts(runID string, limit int) ([]spec.Attempt, error)
}

func New(bind string, run Run, journal AttemptStore) governor.Service {
	a := &WebAPI{run: run, store: journal}
	a.srv = http.Server{
		Addr:    bind,
		Handler: a.Handler(),
	}
	return a
}

type WebAPI struct {
	governor.ServiceCtx
	srv   http.Server
	run   Run
	store AttemptStore
}

// Handler routes the API; exposed for tests.
func (a *WebAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", a.getStatus)
	mux.HandleFunc("/attempts", a.getAttempts)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// called on any
func (a *WebAPI) Stop() {
	// new goroutine because Shutdown() blocks
	go func() {
		// cannot use ServiceCtx here because it's already cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.srv.Shutdown(ctx) // blocking call
		cancel()
	}()
}

// goroutine
func (a *WebAPI) Run() {
	log.Infof("[web] HTTP server listening on: %v", a.srv.Addr)
	if err := a.srv.ListenAndServe(); err != http.ErrServerClosed { // blocking call
		log.Errorf("[web] HTTP server: %v", err)
	}
}

type StatusResponse struct {
	airdrop.Status
	Summary []spec.OutcomeCount `json:"summary"`
}

type AttemptView struct {
	Stage     string `json:"stage"`
	Target    string `json:"target"`
	Address   string `json:"address,omitempty"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"started_at"` // RFC3339
	ElapsedMs int64  `json:"elapsed_ms"`
}

func (a *WebAPI) getStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		res := StatusResponse{Status: a.run.Status(), Summary: []spec.OutcomeCount{}}
		if a.store != nil {
			summary, err := a.store.Summary(a.run.RunID())
			if err != nil {
				queryError(w, err)
				return
			}
			if summary != nil {
				res.Summary = summary
			}
		}
		sendJson(w, res, "GET, OPTIONS")
	} else {
		options(w, r, "GET, OPTIONS")
	}
}

func (a *WebAPI) getAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		limit := defaultAttemptLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 {
				http.Error(w, fmt.Sprintf("bad request: invalid limit %q", q), http.StatusBadRequest)
				return
			}
			limit = n
		}
		views := []AttemptView{}
		if a.store != nil {
			list, err := a.store.Attempts(a.run.RunID(), limit)
			if err != nil {
				queryError(w, err)
				return
			}
			for _, at := range list {
				views = append(views, AttemptView{
					Stage:     at.Stage,
					Target:    at.Target,
					Address:   at.Address,
					Outcome:   at.Outcome,
					Error:     at.Error,
					StartedAt: at.StartedAt.UTC().Format(time.RFC3339),
					ElapsedMs: at.Elapsed.Milliseconds(),
				})
			}
		}
		sendJson(w, views, "GET, OPTIONS")
	} else {
		options(w, r, "GET, OPTIONS")
	}
}

// queryError reports a busy journal as temporary.
func queryError(w http.ResponseWriter, err error) {
	if store.IsConflict(err) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, fmt.Sprintf("journal busy: %s", err.Error()), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, fmt.Sprintf("error in query: %s", err.Error()), http.StatusInternalServerError)
}

func sendJson(w http.ResponseWriter, payload any, allow string) {
	bytes, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("error encoding JSON: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(bytes)))
	w.Header().Set("Allow", allow)
	w.Write(bytes)
}

func options(w http.ResponseWriter, r *http.Request, options string) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Allow", options)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", options)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
