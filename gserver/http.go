package gserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Store gstore.Store

	// Optional. If set, /metrics serves the gathered metrics.
	Gatherer prometheus.Gatherer

	// Optional. If set, /validators serves the validator set
	// loaded from the latest snapshot.
	Validators func(context.Context, gstore.Snapshot) ([]gabci.Validator, error)
}

// NewHTTPServer serves cfg.Listener until ctx is cancelled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	h := stateHandler{log: log, store: cfg.Store, vals: cfg.Validators}

	r.HandleFunc("/status", h.HandleStatus).Methods("GET")
	r.HandleFunc("/state/{key:.+}", h.HandleGet).Methods("GET")
	r.HandleFunc("/state-prefix/{prefix:.*}", h.HandlePrefix).Methods("GET")

	if cfg.Validators != nil {
		r.HandleFunc("/validators", h.HandleValidators).Methods("GET")
	}

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

type stateHandler struct {
	log *slog.Logger

	store gstore.Store
	vals  func(context.Context, gstore.Snapshot) ([]gabci.Validator, error)
}

// Status is the response body of GET /status.
type Status struct {
	Initialized bool `json:"initialized"`

	// Omitted when the store is uninitialized.
	LatestVersion *uint64 `json:"latest_version,omitempty"`

	RootHash string `json:"root_hash"`
}

// Entry is one key-value pair in a state response.
// Keys and values are base64 encoded, as is usual for []byte in JSON.
type Entry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// StateResponse is the response body of the state routes.
type StateResponse struct {
	Version uint64  `json:"version"`
	Entries []Entry `json:"entries"`
}

// Validator is one element of the GET /validators response.
type Validator struct {
	Type   string `json:"type"`
	PubKey string `json:"pub_key"`
	Power  uint64 `json:"power"`
}

func (h stateHandler) HandleStatus(w http.ResponseWriter, req *http.Request) {
	// Read the snapshot once so version and hash agree.
	snap := h.store.LatestSnapshot()

	var s Status
	if v := snap.Version(); v != gstore.UninitializedVersion {
		s.Initialized = true
		s.LatestVersion = &v
	}
	s.RootHash = hex.EncodeToString(snap.RootHash())

	h.writeJSON(w, "status", s)
}

func (h stateHandler) HandleGet(w http.ResponseWriter, req *http.Request) {
	key, ok := h.pathBytes(w, req, "key")
	if !ok {
		return
	}

	snap, ok := h.snapshot(w, req)
	if !ok {
		return
	}

	val, err := snap.Get(req.Context(), key)
	if err != nil {
		if errors.Is(err, gstore.ErrKeyNotFound) {
			http.Error(w, "key not found", http.StatusNotFound)
			return
		}
		h.log.Warn("Failed to read key", "route", "state", "err", err)
		http.Error(w, "failed to read key", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, "state", StateResponse{
		Version: snap.Version(),
		Entries: []Entry{{Key: key, Value: val}},
	})
}

func (h stateHandler) HandlePrefix(w http.ResponseWriter, req *http.Request) {
	prefix, ok := h.pathBytes(w, req, "prefix")
	if !ok {
		return
	}

	snap, ok := h.snapshot(w, req)
	if !ok {
		return
	}

	entries, err := snap.PrefixScan(req.Context(), prefix)
	if err != nil {
		h.log.Warn("Failed to scan prefix", "route", "state-prefix", "err", err)
		http.Error(w, "failed to scan prefix", http.StatusInternalServerError)
		return
	}

	resp := StateResponse{
		Version: snap.Version(),
		Entries: make([]Entry, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = Entry{Key: e.Key, Value: e.Value}
	}
	h.writeJSON(w, "state-prefix", resp)
}

func (h stateHandler) HandleValidators(w http.ResponseWriter, req *http.Request) {
	vals, err := h.vals(req.Context(), h.store.LatestSnapshot())
	if err != nil {
		h.log.Warn("Failed to load validators", "route", "validators", "err", err)
		http.Error(w, "failed to load validators", http.StatusInternalServerError)
		return
	}

	resp := make([]Validator, len(vals))
	for i, v := range vals {
		resp[i] = Validator{
			Type:   v.PubKey.TypeName(),
			PubKey: hex.EncodeToString(v.PubKey.PubKeyBytes()),
			Power:  v.Power,
		}
	}
	h.writeJSON(w, "validators", resp)
}

// pathBytes returns the named path variable,
// hex-decoded if the request has hex=true.
func (h stateHandler) pathBytes(w http.ResponseWriter, req *http.Request, name string) ([]byte, bool) {
	raw := mux.Vars(req)[name]

	useHex, _ := strconv.ParseBool(req.URL.Query().Get("hex"))
	if !useHex {
		return []byte(raw), true
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid hex %s: %v", name, err), http.StatusBadRequest)
		return nil, false
	}
	return b, true
}

// snapshot returns the snapshot at the version query parameter,
// or the latest snapshot if there is none.
func (h stateHandler) snapshot(w http.ResponseWriter, req *http.Request) (gstore.Snapshot, bool) {
	vs := req.URL.Query().Get("version")
	if vs == "" {
		return h.store.LatestSnapshot(), true
	}

	v, err := strconv.ParseUint(vs, 10, 64)
	if err != nil {
		http.Error(w, "invalid version: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}

	snap, err := h.store.Snapshot(req.Context(), v)
	if err != nil {
		var vnf gstore.VersionNotFoundError
		if errors.As(err, &vnf) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return nil, false
		}
		h.log.Warn("Failed to open snapshot", "version", v, "err", err)
		http.Error(w, "failed to open snapshot", http.StatusInternalServerError)
		return nil, false
	}
	return snap, true
}

func (h stateHandler) writeJSON(w http.ResponseWriter, route string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Failed to encode response", "route", route, "err", err)
	}
}
