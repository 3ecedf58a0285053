// Package adminhttp exposes the trusted override surface over local HTTP.
package adminhttp

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/transport/ws"
)

const KeyHeader = "X-Admin-Key"

type Options struct {
	// AllowRemote skips the loopback check.
	AllowRemote bool
	// RequestsPerSecond and Burst bound the whole surface.
	RequestsPerSecond float64
	Burst             int
}

type Server struct {
	engine  *game.Engine
	log     *log.Logger
	opts    Options
	limiter *rate.Limiter
}

func NewServer(e *game.Engine, logger *log.Logger, opts Options) *Server {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	return &Server{
		engine:  e,
		log:     logger,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/auth", s.guard(false, s.handleAuth))
	mux.HandleFunc("/admin/v1/state", s.guard(true, s.handleState))
	mux.HandleFunc("/admin/v1/save", s.guard(true, s.post(s.handleSave)))
	mux.HandleFunc("/admin/v1/override", s.guard(true, s.post(s.handleOverride)))
	mux.HandleFunc("/admin/v1/reset", s.guard(true, s.post(s.handleReset)))
}

// guard applies the loopback, feature, rate and (optionally) key checks.
func (s *Server) guard(needKey bool, next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if !s.engine.Tuning().Features.AdminPanelEnabled {
			http.Error(rw, "admin panel disabled", http.StatusNotFound)
			return
		}
		if !s.limiter.Allow() {
			http.Error(rw, "rate limited", http.StatusTooManyRequests)
			return
		}
		if needKey && !s.authorized(r) {
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(rw, r)
	}
}

func (s *Server) post(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(rw, r)
	}
}

// authorized accepts a matching key header, or the sticky admin flag once
// a previous /auth succeeded.
func (s *Server) authorized(r *http.Request) bool {
	want := s.engine.Tuning().AdminKey
	if key := r.Header.Get(KeyHeader); key != "" && want != "" {
		return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
	}
	return s.engine.AdminMode()
}

func (s *Server) handleAuth(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
	key := gjson.GetBytes(body, "key").String()
	if key == "" {
		key = r.Header.Get(KeyHeader)
	}
	if !s.engine.Authenticate(key) {
		s.logf("admin auth failed remote=%s", r.RemoteAddr)
		writeJSON(rw, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid key"})
		return
	}
	s.logf("admin auth ok remote=%s", r.RemoteAddr)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "admin_mode": true})
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"state":   ws.View(s.engine),
		"rebirth": s.engine.RebirthInfo(),
	})
}

func (s *Server) handleSave(rw http.ResponseWriter, r *http.Request) {
	ok := s.engine.RequestSave()
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(rw, status, map[string]any{"ok": ok, "saved_at": s.engine.LastSave().UnixMilli()})
}

func (s *Server) handleReset(rw http.ResponseWriter, r *http.Request) {
	s.engine.HardReset()
	s.logf("hard reset remote=%s", r.RemoteAddr)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleOverride(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil || !gjson.ValidBytes(body) {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	req := gjson.ParseBytes(body)
	action := strings.ToLower(strings.TrimSpace(req.Get("action").String()))
	ok, err := Apply(s.engine, action, req)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.logf("override action=%s ok=%v remote=%s", action, ok, r.RemoteAddr)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": ok, "state": ws.View(s.engine)})
}

// Actions lists the override names Apply accepts.
func Actions() []string {
	return []string{
		"set_admin_mode", "set_balance", "add_balance", "force_max_balance",
		"set_frozen", "set_unlimited_balance", "set_cps_multiplier",
		"set_tap_multiplier", "set_cps_flat_bonus", "set_free_costs",
		"set_forced_rarity", "set_bulk_crate_opening", "grant_item",
		"grant_all_items", "clear_inventory", "set_upgrade_levels",
		"max_all_upgrades", "reset_all_upgrades", "set_rebirth_count",
	}
}

// intValue accepts whole numbers that fit in an int32.
func intValue(action string, v gjson.Result) (int, error) {
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%s: numeric value required", action)
	}
	f := v.Float()
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%s: %s is not a whole number in range", action, v.Raw)
	}
	return int(f), nil
}

// Apply runs one override read from req. Unknown actions and missing or
// mistyped values are errors; the engine is untouched in that case.
func Apply(e *game.Engine, action string, req gjson.Result) (bool, error) {
	v := req.Get("value")
	num := func() (float64, error) {
		if v.Type != gjson.Number {
			return 0, fmt.Errorf("%s: numeric value required", action)
		}
		return v.Float(), nil
	}
	flag := func() (bool, error) {
		if v.Type != gjson.True && v.Type != gjson.False {
			return false, fmt.Errorf("%s: boolean value required", action)
		}
		return v.Bool(), nil
	}

	switch action {
	case "set_admin_mode", "set_frozen", "set_unlimited_balance", "set_free_costs", "set_bulk_crate_opening":
		on, err := flag()
		if err != nil {
			return false, err
		}
		switch action {
		case "set_admin_mode":
			return e.SetAdminMode(on), nil
		case "set_frozen":
			return e.SetFrozen(on), nil
		case "set_unlimited_balance":
			return e.SetUnlimitedBalance(on), nil
		case "set_free_costs":
			return e.SetFreeCosts(on), nil
		default:
			return e.SetBulkCrateOpening(on), nil
		}
	case "set_balance", "add_balance", "set_cps_multiplier", "set_tap_multiplier", "set_cps_flat_bonus":
		n, err := num()
		if err != nil {
			return false, err
		}
		switch action {
		case "set_balance":
			return e.SetBalance(n), nil
		case "add_balance":
			return e.AddBalance(n), nil
		case "set_cps_multiplier":
			return e.SetCPSMultiplier(n), nil
		case "set_tap_multiplier":
			return e.SetTapMultiplier(n), nil
		default:
			return e.SetCPSFlatBonus(n), nil
		}
	case "set_rebirth_count":
		n, err := intValue(action, v)
		if err != nil {
			return false, err
		}
		return e.SetRebirthCount(n), nil
	case "force_max_balance":
		return e.ForceMaxBalance(), nil
	case "set_forced_rarity":
		if !v.Exists() || v.Type == gjson.Null || v.String() == "" {
			return e.SetForcedRarity(nil), nil
		}
		r, err := catalogs.ParseRarity(v.String())
		if err != nil {
			return false, err
		}
		return e.SetForcedRarity(&r), nil
	case "grant_item":
		id := req.Get("item").String()
		if id == "" {
			return false, fmt.Errorf("grant_item: item required")
		}
		if _, ok := e.Catalogs().Item(id); !ok {
			return false, fmt.Errorf("grant_item: unknown item %q", id)
		}
		return e.GrantItem(id, req.Get("auto_equip").Bool()), nil
	case "grant_all_items":
		return e.GrantAllItems(), nil
	case "clear_inventory":
		return e.ClearInventory(), nil
	case "set_upgrade_levels":
		raw := req.Get("levels")
		if !raw.IsObject() {
			return false, fmt.Errorf("set_upgrade_levels: levels object required")
		}
		levels := map[string]int{}
		var bad error
		raw.ForEach(func(k, lv gjson.Result) bool {
			if _, ok := e.Catalogs().Upgrade(k.String()); !ok {
				bad = fmt.Errorf("set_upgrade_levels: unknown upgrade %q", k.String())
				return false
			}
			n, err := intValue("set_upgrade_levels", lv)
			if err != nil {
				bad = fmt.Errorf("%w for %q", err, k.String())
				return false
			}
			levels[k.String()] = n
			return true
		})
		if bad != nil {
			return false, bad
		}
		return e.SetUpgradeLevels(levels), nil
	case "max_all_upgrades":
		return e.MaxAllUpgrades(), nil
	case "reset_all_upgrades":
		return e.ResetAllUpgrades(), nil
	}
	return false, fmt.Errorf("unknown action %q", action)
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

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
