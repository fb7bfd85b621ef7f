package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"sort"
	"strconv"
	"strings"

	"stellarforge.dev/internal/persistence/indexdb"
	"stellarforge.dev/internal/protocol"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/transport/ws"
)

type muxOptions struct {
	store  *indexdb.SQLiteIndex
	remote remoteIndex
	mirror *r2MirrorRuntime

	enableAdmin bool
	enablePprof bool
}

func newMux(g *game.Game, logger *log.Logger, opts muxOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeGameMetrics(rw, g.Metrics())
		if opts.store != nil {
			writeIndexMetrics(rw, g.Slot(), opts.store.Stats())
		}
		if d1, ok := opts.remote.(*indexdb.D1Index); ok && d1 != nil {
			writeRemoteIndexMetrics(rw, g.Slot(), d1.Stats())
		}
		writeR2MirrorMetrics(rw, opts.mirror)
	})

	if opts.enableAdmin || envBool("SF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, g.Metrics())
		}))
		mux.HandleFunc("/admin/v1/save", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			cmd := protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: "admin_save", Cmd: protocol.CmdSave}
			select {
			case g.Inbox() <- game.Envelope{SessionID: "admin", Cmd: &cmd}:
				writeJSON(rw, http.StatusAccepted, map[string]any{"ok": true})
			default:
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "inbox full"})
			}
		}))
		if opts.store != nil {
			mux.HandleFunc("/admin/v1/milestones", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
				ms, err := opts.store.Milestones(g.Slot(), r.URL.Query().Get("kind"), limit)
				if err != nil {
					writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
					return
				}
				writeJSON(rw, http.StatusOK, map[string]any{"slot": g.Slot(), "milestones": ms})
			}))
			mux.HandleFunc("/admin/v1/runs", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				runs, err := opts.store.Runs(g.Slot())
				if err != nil {
					writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
					return
				}
				writeJSON(rw, http.StatusOK, map[string]any{"slot": g.Slot(), "runs": runs})
			}))
		}
	} else if logger != nil {
		logger.Printf("admin endpoints disabled (SF_ENABLE_ADMIN_HTTP=false)")
	}

	if opts.enablePprof || envBool("SF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(g, logger).Handler())
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeGameMetrics(w io.Writer, m game.Metrics) {
	fmt.Fprintf(w, "# HELP stellarforge_tick Current simulation tick.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_tick gauge\n")
	fmt.Fprintf(w, "stellarforge_tick{slot=%q} %d\n", m.Slot, m.Tick)

	fmt.Fprintf(w, "# HELP stellarforge_clients Current number of connected clients.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_clients gauge\n")
	fmt.Fprintf(w, "stellarforge_clients{slot=%q} %d\n", m.Slot, m.Clients)

	fmt.Fprintf(w, "# HELP stellarforge_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_queue_depth gauge\n")
	fmt.Fprintf(w, "stellarforge_queue_depth{slot=%q,queue=%q} %d\n", m.Slot, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(w, "stellarforge_queue_depth{slot=%q,queue=%q} %d\n", m.Slot, "join", m.QueueDepths.Join)
	fmt.Fprintf(w, "stellarforge_queue_depth{slot=%q,queue=%q} %d\n", m.Slot, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(w, "# HELP stellarforge_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_step_ms gauge\n")
	fmt.Fprintf(w, "stellarforge_step_ms{slot=%q} %.3f\n", m.Slot, m.StepMS)

	fmt.Fprintf(w, "# HELP stellarforge_resource Current resource balance.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_resource gauge\n")
	for _, r := range sortedKeys(m.Resources) {
		fmt.Fprintf(w, "stellarforge_resource{slot=%q,resource=%q} %g\n", m.Slot, r, m.Resources[r])
	}
	fmt.Fprintf(w, "# HELP stellarforge_rps Net resources per second.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_rps gauge\n")
	for _, r := range sortedKeys(m.RPS) {
		fmt.Fprintf(w, "stellarforge_rps{slot=%q,resource=%q} %g\n", m.Slot, r, m.RPS[r])
	}

	fmt.Fprintf(w, "# HELP stellarforge_generators_owned Total generators owned.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_generators_owned gauge\n")
	fmt.Fprintf(w, "stellarforge_generators_owned{slot=%q} %d\n", m.Slot, m.Generators)

	fmt.Fprintf(w, "# HELP stellarforge_prestige_points Banked prestige points.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_prestige_points gauge\n")
	fmt.Fprintf(w, "stellarforge_prestige_points{slot=%q} %d\n", m.Slot, m.PrestigePoints)

	fmt.Fprintf(w, "# HELP stellarforge_active_boosts Boosts currently in effect.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_active_boosts gauge\n")
	fmt.Fprintf(w, "stellarforge_active_boosts{slot=%q} %d\n", m.Slot, m.ActiveBoosts)

	fmt.Fprintf(w, "# HELP stellarforge_last_save_unix_ms Time of the last successful save.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_last_save_unix_ms gauge\n")
	fmt.Fprintf(w, "stellarforge_last_save_unix_ms{slot=%q} %d\n", m.Slot, m.LastSaveUnixMs)
}

func writeIndexMetrics(w io.Writer, slot string, s indexdb.QueueStats) {
	fmt.Fprintf(w, "# HELP stellarforge_index_queue_depth SQLite index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_index_queue_depth gauge\n")
	fmt.Fprintf(w, "stellarforge_index_queue_depth{slot=%q} %d\n", slot, s.QueueDepth)

	fmt.Fprintf(w, "# HELP stellarforge_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_index_dropped_total counter\n")
	fmt.Fprintf(w, "stellarforge_index_dropped_total{slot=%q,kind=%q} %d\n", slot, "milestone", s.DropMilestoneTotal)
	fmt.Fprintf(w, "stellarforge_index_dropped_total{slot=%q,kind=%q} %d\n", slot, "run", s.DropRunTotal)
}

func writeRemoteIndexMetrics(w io.Writer, slot string, s indexdb.D1Stats) {
	fmt.Fprintf(w, "# HELP stellarforge_remote_index_queue_depth Remote index backlog.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_remote_index_queue_depth gauge\n")
	fmt.Fprintf(w, "stellarforge_remote_index_queue_depth{slot=%q} %d\n", slot, s.QueueDepth)

	fmt.Fprintf(w, "# HELP stellarforge_remote_index_sent_total Events delivered to the remote index.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_remote_index_sent_total counter\n")
	fmt.Fprintf(w, "stellarforge_remote_index_sent_total{slot=%q} %d\n", slot, s.SentTotal)

	fmt.Fprintf(w, "# HELP stellarforge_remote_index_flush_fail_total Failed remote index flushes.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_remote_index_flush_fail_total counter\n")
	fmt.Fprintf(w, "stellarforge_remote_index_flush_fail_total{slot=%q} %d\n", slot, s.FlushFailTotal)

	fmt.Fprintf(w, "# HELP stellarforge_remote_index_dropped_total Events dropped before delivery.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_remote_index_dropped_total counter\n")
	fmt.Fprintf(w, "stellarforge_remote_index_dropped_total{slot=%q} %d\n", slot, s.QueueDroppedTotal)
}

func writeR2MirrorMetrics(w io.Writer, mirror *r2MirrorRuntime) {
	s, ok := mirror.Stats()
	if !ok {
		return
	}
	fmt.Fprintf(w, "# HELP stellarforge_r2_mirror_queue_depth Current R2 mirror queue depth.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_r2_mirror_queue_depth gauge\n")
	fmt.Fprintf(w, "stellarforge_r2_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP stellarforge_r2_mirror_dropped_total Files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_r2_mirror_dropped_total counter\n")
	fmt.Fprintf(w, "stellarforge_r2_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(w, "# HELP stellarforge_r2_mirror_upload_success_total Successful mirror uploads.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_r2_mirror_upload_success_total counter\n")
	fmt.Fprintf(w, "stellarforge_r2_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(w, "# HELP stellarforge_r2_mirror_upload_fail_total Failed mirror uploads after retry.\n")
	fmt.Fprintf(w, "# TYPE stellarforge_r2_mirror_upload_fail_total counter\n")
	fmt.Fprintf(w, "stellarforge_r2_mirror_upload_fail_total %d\n", s.UploadFailTotal)
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
