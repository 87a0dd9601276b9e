package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/telemetry"
)

type statsResponse struct {
	telemetry.CountersSnapshot
	Players int `json:"players"`
}

// Routes returns the HTTP surface: the websocket endpoint plus diagnostics.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/snapshots/{tick:[0-9]+}", s.handleSnapshot).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		CountersSnapshot: s.counters.Snapshot(),
		Players:          s.PlayerCount(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseUint(mux.Vars(r)["tick"], 10, 32)
	if err != nil {
		http.Error(w, "bad tick", http.StatusBadRequest)
		return
	}

	snap, ok, err := s.lookupSnapshot(r.Context(), uint32(t))
	switch {
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case !ok:
		http.Error(w, "snapshot not retained", http.StatusNotFound)
	default:
		s.writeJSON(w, http.StatusOK, snap)
	}
}

// lookupSnapshot asks the loop for in-memory history first and falls back to
// the archive.
func (s *Server) lookupSnapshot(ctx context.Context, t uint32) (messages.Snapshot, bool, error) {
	reply := make(chan historyAnswer, 1)
	if s.enqueue(historyQuery{tick: t, reply: reply}) {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		select {
		case ans := <-reply:
			if ans.ok {
				return ans.snap, true, nil
			}
		case <-ctx.Done():
			return messages.Snapshot{}, false, ctx.Err()
		}
	}
	if s.archive == nil {
		return messages.Snapshot{}, false, nil
	}
	snap, err := s.archive.Load(t)
	if errors.Is(err, ErrNotArchived) {
		return messages.Snapshot{}, false, nil
	}
	if err != nil {
		return messages.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode %T response: %v", v, err)
	}
}
