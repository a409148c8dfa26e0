// Package upstream is a demo AO compute/memory-unit backend: enough of a
// process-shaped API to exercise every route the router forwards to,
// without pretending to be a real AO node. It exists for local development
// and the router's own integration tests.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	applog "github.com/Ethan-GoldS/ao-sub000/internal/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// message is one unit of work accepted onto a process's inbox via
// POST /message (dry-runs are answered without being stored; this demo
// does not distinguish message payload shapes).
type message struct {
	ID        string          `json:"id"`
	ProcessID string          `json:"processId"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// process holds everything this demo backend remembers about one AO
// process id: its accumulated state blob and the messages it has seen.
type process struct {
	ID        string          `json:"id"`
	State     json.RawMessage `json:"state"`
	Messages  []message       `json:"messages"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// store is an in-memory, per-process registry. Real AO nodes persist this
// durably; this demo only needs enough state to answer the routes the
// router proxies to it.
type store struct {
	mu        sync.RWMutex
	processes map[string]*process
	nextMsgID int64
}

func newStore() *store {
	return &store{processes: make(map[string]*process)}
}

func (s *store) getOrCreate(processId string) *process {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[processId]
	if !ok {
		p = &process{ID: processId, State: json.RawMessage(`{}`), UpdatedAt: time.Now()}
		s.processes[processId] = p
	}
	return p
}

func (s *store) get(processId string) (*process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[processId]
	return p, ok
}

func (s *store) appendMessage(processId string, data json.RawMessage) message {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[processId]
	if !ok {
		p = &process{ID: processId, State: json.RawMessage(`{}`)}
		s.processes[processId] = p
	}
	s.nextMsgID++
	msg := message{
		ID:        fmt.Sprintf("msg-%d", s.nextMsgID),
		ProcessID: processId,
		Data:      data,
		CreatedAt: time.Now(),
	}
	p.Messages = append(p.Messages, msg)
	p.UpdatedAt = time.Now()
	return msg
}

func (s *store) findMessage(messageId string) (message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.processes {
		for _, m := range p.Messages {
			if m.ID == messageId {
				return m, true
			}
		}
	}
	return message{}, false
}

// Start boots the demo backend on listenAddr. It answers every route the
// router's cu and mu profiles forward to, plus /healthcheck and /metrics.
// This is a development aid, not a production AO implementation.
func Start(listenAddr string) error {
	dataStore := newStore()
	seed := dataStore.getOrCreate("demo-process")
	seed.State = json.RawMessage(`{"seeded":true}`)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /dry-run", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ProcessId string          `json:"processId"`
			Data      json.RawMessage `json:"data"`
		}
		pid := r.URL.Query().Get("process-id")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		if pid == "" {
			pid = body.ProcessId
		}
		if strings.TrimSpace(pid) == "" {
			http.Error(w, `{"error":"processId required"}`, http.StatusBadRequest)
			return
		}
		p := dataStore.getOrCreate(pid)
		writeJSON(w, http.StatusOK, map[string]any{
			"processId": pid,
			"result":    "dry-run-ok",
			"state":     json.RawMessage(p.State),
		})
	})

	mux.HandleFunc("POST /message", func(w http.ResponseWriter, r *http.Request) {
		pid := r.URL.Query().Get("process-id")
		if strings.TrimSpace(pid) == "" {
			http.Error(w, `{"error":"process-id required"}`, http.StatusBadRequest)
			return
		}
		var data json.RawMessage
		if r.Body != nil {
			raw, _ := json.Marshal(json.RawMessage(nil))
			data = raw
			var v json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&v); err == nil {
				data = v
			}
		}
		msg := dataStore.appendMessage(pid, data)
		writeJSON(w, http.StatusOK, msg)
	})

	mux.HandleFunc("GET /result/{messageId}", func(w http.ResponseWriter, r *http.Request) {
		messageId := r.PathValue("messageId")
		msg, ok := dataStore.findMessage(messageId)
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"messageId": msg.ID,
			"processId": msg.ProcessID,
			"status":    "settled",
			"output":    msg.Data,
		})
	})

	mux.HandleFunc("GET /state/{processId}", func(w http.ResponseWriter, r *http.Request) {
		pid := r.PathValue("processId")
		p, ok := dataStore.get(pid)
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	mux.HandleFunc("GET /cron/{processId}", func(w http.ResponseWriter, r *http.Request) {
		pid := r.PathValue("processId")
		p := dataStore.getOrCreate(pid)
		writeJSON(w, http.StatusOK, map[string]any{
			"processId": pid,
			"cron":      []string{},
			"lastRun":   p.UpdatedAt.Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("GET /schedule/{processId}", func(w http.ResponseWriter, r *http.Request) {
		pid := r.PathValue("processId")
		p, ok := dataStore.get(pid)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"processId": pid, "messages": []message{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"processId": pid, "messages": p.Messages})
	})

	// Acquire listener first so we can handle "address in use" gracefully.
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		fallbackAddr := addrWithPortZero(listenAddr)
		log.Printf("address %q in use, retrying on %q", listenAddr, fallbackAddr)
		listener, err = net.Listen("tcp", fallbackAddr)
	}
	if err != nil {
		return err
	}

	log.Printf("upstream demo server listening on %s", listener.Addr().String())

	upstreamID := listener.Addr().String()
	handlerChain := applog.WithRequestID(
		applog.WithRequestLogging(
			withUpstreamHeader(upstreamID, mux),
		),
	)

	return http.Serve(listener, handlerChain)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func addrWithPortZero(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ":0"
	}
	return net.JoinHostPort(host, "0")
}

func withUpstreamHeader(upstreamID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", upstreamID)
		next.ServeHTTP(w, r)
	})
}
