package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"mepclicker.app/internal/sim/notation"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	action := fs.String("action", "", "action filter (audits)")
	session := fs.String("session", "", "session filter (telemetry)")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "mep.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *limit, *action, *session, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type saveRow struct {
	Seq            int64   `json:"seq"`
	At             string  `json:"at"`
	Balance        float64 `json:"balance"`
	BalanceText    string  `json:"balance_text"`
	LifetimeEarned float64 `json:"lifetime_earned"`
	ProductionRate float64 `json:"production_rate"`
	RebirthCount   int     `json:"rebirth_count"`
	Inventory      int     `json:"inventory"`
	Equipped       int     `json:"equipped"`
	AdminMode      bool    `json:"admin_mode"`
}

type auditRow struct {
	Seq     int64   `json:"seq"`
	At      string  `json:"at"`
	Action  string  `json:"action"`
	Target  string  `json:"target,omitempty"`
	Gain    float64 `json:"gain"`
	Cost    float64 `json:"cost"`
	Balance float64 `json:"balance"`
	Items   int     `json:"items"`
}

type telemetryRow struct {
	Seq        int64   `json:"seq"`
	ReceivedAt string  `json:"received_at"`
	SessionID  string  `json:"session_id,omitempty"`
	MEP        float64 `json:"mep"`
	TotalMEP   float64 `json:"total_mep"`
	Rebirths   int     `json:"rebirths"`
}

type catalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func runQuery(db *sql.DB, q string, limit int, action, session string, emit func(any)) error {
	switch q {
	case "saves":
		rows, err := db.Query(`SELECT seq,at,balance,lifetime_earned,production_rate,rebirth_count,inventory,equipped,admin_mode FROM saves ORDER BY seq DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r saveRow
			var admin int
			if err := rows.Scan(&r.Seq, &r.At, &r.Balance, &r.LifetimeEarned, &r.ProductionRate, &r.RebirthCount, &r.Inventory, &r.Equipped, &admin); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.AdminMode = admin != 0
			r.BalanceText = notation.Format(r.Balance)
			emit(r)
		}
		return rows.Err()

	case "audits":
		query := `SELECT seq,at,action,COALESCE(target,''),gain,cost,balance,items FROM audits`
		qargs := []any{}
		if action != "" {
			query += ` WHERE action=?`
			qargs = append(qargs, action)
		}
		query += ` ORDER BY seq DESC LIMIT ?`
		qargs = append(qargs, limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r auditRow
			if err := rows.Scan(&r.Seq, &r.At, &r.Action, &r.Target, &r.Gain, &r.Cost, &r.Balance, &r.Items); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "telemetry":
		query := `SELECT seq,received_at,COALESCE(session_id,''),mep,total_mep,rebirths FROM telemetry`
		qargs := []any{}
		if session != "" {
			query += ` WHERE session_id=?`
			qargs = append(qargs, session)
		}
		query += ` ORDER BY seq DESC LIMIT ?`
		qargs = append(qargs, limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r telemetryRow
			if err := rows.Scan(&r.Seq, &r.ReceivedAt, &r.SessionID, &r.MEP, &r.TotalMEP, &r.Rebirths); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r catalogRow
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query %q (saves|audits|telemetry|catalogs)", q)
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
