package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"mepclicker.app/internal/persistence/indexdb"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/telemetry"
	"mepclicker.app/internal/transport/ws"
)

// Metrics collects the optional sources exported on /metrics.
type Metrics struct {
	Engine    *game.Engine
	WS        *ws.Server
	API       *Server
	Telemetry *telemetry.Reporter
	Index     *indexdb.SQLiteIndex
}

func HealthHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	}
}

func (m Metrics) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.Write(rw)
	}
}

// Write emits a minimal Prometheus exposition.
func (m Metrics) Write(w io.Writer) {
	if m.Engine != nil {
		st := m.Engine.Snapshot()
		gauge(w, "mep_balance", "Current MEP balance.", st.Balance)
		gauge(w, "mep_lifetime_earned", "Lifetime MEP earned.", st.LifetimeEarned)
		gauge(w, "mep_production_rate", "Passive MEP per second.", st.ProductionRate)
		gauge(w, "mep_tap_power", "MEP per tap before crits.", st.TapPower)
		gauge(w, "mep_rebirths", "Completed rebirths.", float64(st.RebirthCount))
		gauge(w, "mep_inventory_size", "Owned item copies.", float64(len(st.Inventory)))
		gauge(w, "mep_equipped", "Equipped items.", float64(len(st.EquippedIDs)))
		gauge(w, "mep_slot_limit", "Equip slot limit.", float64(m.Engine.SlotLimit()))
		if last := m.Engine.LastSave(); !last.IsZero() {
			gauge(w, "mep_last_save_unix", "Unix time of the last save.", float64(last.Unix()))
		}
	}
	if m.WS != nil {
		s := m.WS.Stats()
		gauge(w, "mep_ws_sessions", "Open WebSocket sessions.", float64(s.Sessions))
		counter(w, "mep_ws_acts_total", "ACT messages dispatched.", s.ActsTotal)
		counter(w, "mep_ws_rejected_total", "ACT messages rejected.", s.RejectedTotal)
		counter(w, "mep_ws_dropped_total", "Outbound messages dropped on full queues.", s.DroppedTotal)
	}
	if m.API != nil {
		ok, bad := m.API.Counts()
		counter(w, "mep_api_reports_total", "Accepted /api/mep reports.", ok)
		counter(w, "mep_api_reports_invalid_total", "Rejected /api/mep reports.", bad)
	}
	if m.Telemetry != nil {
		s := m.Telemetry.Stats()
		gauge(w, "mep_telemetry_queue_depth", "Telemetry queue depth.", float64(s.QueueDepth))
		counter(w, "mep_telemetry_sent_total", "Telemetry reports delivered.", s.SentTotal)
		counter(w, "mep_telemetry_flush_fail_total", "Failed telemetry flushes.", s.FlushFailTotal)
		counter(w, "mep_telemetry_queue_dropped_total", "Reports dropped on a full queue.", s.QueueDroppedTotal)
		counter(w, "mep_telemetry_throttled_total", "Reports dropped by the rate limit.", s.ThrottledTotal)
	}
	if m.Index != nil {
		s := m.Index.Stats()
		gauge(w, "mep_index_queue_depth", "Index writer queue depth.", float64(s.QueueDepth))
		gauge(w, "mep_index_queue_capacity", "Index writer queue capacity.", float64(s.QueueCapacity))
		fmt.Fprintf(w, "# HELP mep_index_dropped_total Index rows dropped on a full queue.\n")
		fmt.Fprintf(w, "# TYPE mep_index_dropped_total counter\n")
		fmt.Fprintf(w, "mep_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
		fmt.Fprintf(w, "mep_index_dropped_total{kind=%q} %d\n", "save", s.DropSaveTotal)
		fmt.Fprintf(w, "mep_index_dropped_total{kind=%q} %d\n", "telemetry", s.DropTelemetryTotal)
	}
}

func gauge(w io.Writer, name, help string, v float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %g\n", name, v)
}

func counter(w io.Writer, name, help string, v uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, v)
}
