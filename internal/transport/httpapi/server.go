// Package httpapi serves the public JSON endpoints.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"mepclicker.app/internal/persistence/indexdb"
	"mepclicker.app/internal/sim/tuning"
)

const maxReportBytes = 16 * 1024

// TelemetrySink receives accepted reports.
type TelemetrySink interface {
	RecordTelemetry(r indexdb.TelemetryRow)
}

type Server struct {
	features func() tuning.Features
	schema   *jsonschema.Schema
	sink     TelemetrySink
	log      *log.Logger
	now      func() time.Time

	received atomic.Uint64
	invalid  atomic.Uint64
}

// LoadTelemetrySchema compiles telemetry.schema.json from dir.
func LoadTelemetrySchema(dir string) (*jsonschema.Schema, error) {
	s, err := jsonschema.Compile(filepath.Join(dir, "telemetry.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("compile telemetry schema: %w", err)
	}
	return s, nil
}

// NewServer wires the endpoints. sink and logger may be nil.
func NewServer(features func() tuning.Features, schema *jsonschema.Schema, sink TelemetrySink, logger *log.Logger) *Server {
	return &Server{
		features: features,
		schema:   schema,
		sink:     sink,
		log:      logger,
		now:      time.Now,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/hello", s.handleHello)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/mep", s.handleMEP)
}

// Counts returns accepted and rejected /api/mep totals.
func (s *Server) Counts() (received, invalid uint64) {
	return s.received.Load(), s.invalid.Load()
}

func (s *Server) handleHello(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"message":   "Welcome to the Monster Clicker API",
		"status":    "online",
		"timestamp": s.now().UnixMilli(),
	})
}

type configResp struct {
	Features    featureFlags `json:"features"`
	Maintenance bool         `json:"maintenance"`
	MOTD        string       `json:"motd"`
}

type featureFlags struct {
	RebirthEnabled    bool `json:"rebirthEnabled"`
	AdminPanelEnabled bool `json:"adminPanelEnabled"`
	CratesEnabled     bool `json:"cratesEnabled"`
}

func (s *Server) handleConfig(rw http.ResponseWriter, r *http.Request) {
	f := s.features()
	writeJSON(rw, http.StatusOK, configResp{
		Features: featureFlags{
			RebirthEnabled:    f.RebirthEnabled,
			AdminPanelEnabled: f.AdminPanelEnabled,
			CratesEnabled:     f.CratesEnabled,
		},
		Maintenance: f.Maintenance,
		MOTD:        f.MOTD,
	})
}

func (s *Server) handleMEP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBytes+1))
	if err != nil || len(body) > maxReportBytes || !s.valid(body) {
		s.invalid.Add(1)
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}
	s.received.Add(1)

	g := gjson.GetManyBytes(body, "mep", "totalMep", "rebirths", "sessionId")
	if s.sink != nil {
		s.sink.RecordTelemetry(indexdb.TelemetryRow{
			ReceivedAt: s.now(),
			MEP:        g[0].Float(),
			TotalMEP:   g[1].Float(),
			Rebirths:   int(g[2].Int()),
			SessionID:  g[3].String(),
			Raw:        body,
		})
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":  true,
		"received": g[0].Float(),
		"note":     "Data received at the edge",
	})
}

func (s *Server) valid(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	if s.schema == nil {
		return gjson.GetBytes(body, "mep").Type == gjson.Number
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return false
	}
	if err := s.schema.Validate(v); err != nil {
		if s.log != nil {
			s.log.Printf("reject telemetry: %v", err)
		}
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
