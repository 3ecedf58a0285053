package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"mepclicker.app/internal/transport/adminhttp"
)

type client struct {
	base  string
	key   string
	field string
	http  *http.Client
}

func commonFlags(name string) (*flag.FlagSet, *client) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := &client{http: &http.Client{Timeout: 10 * time.Second}}
	fs.StringVar(&c.base, "url", "http://127.0.0.1:8080", "server base url")
	fs.StringVar(&c.key, "key", os.Getenv("MEP_ADMIN_KEY"), "admin key (or set MEP_ADMIN_KEY)")
	fs.StringVar(&c.field, "field", "", "print only this gjson path of the response")
	return fs, c
}

func stateCmd(args []string) {
	fs, c := commonFlags("state")
	_ = fs.Parse(args)
	c.run(http.MethodGet, "/admin/v1/state", nil)
}

func saveCmd(args []string) {
	fs, c := commonFlags("save")
	_ = fs.Parse(args)
	c.run(http.MethodPost, "/admin/v1/save", nil)
}

func resetCmd(args []string) {
	fs, c := commonFlags("reset")
	yes := fs.Bool("yes", false, "confirm the hard reset")
	_ = fs.Parse(args)
	if !*yes {
		fmt.Fprintln(os.Stderr, "reset wipes the save; pass -yes to confirm")
		os.Exit(2)
	}
	c.run(http.MethodPost, "/admin/v1/reset", nil)
}

func authCmd(args []string) {
	fs, c := commonFlags("auth")
	_ = fs.Parse(args)
	body, _ := json.Marshal(map[string]string{"key": c.key})
	c.run(http.MethodPost, "/admin/v1/auth", body)
}

func overrideCmd(args []string) {
	fs, c := commonFlags("override")
	action := fs.String("action", "", "override action (see -list)")
	value := fs.String("value", "", "value: JSON literal (5e9, true, null) or a bare string")
	item := fs.String("item", "", "item id (grant_item)")
	autoEquip := fs.Bool("auto_equip", false, "equip the granted item (grant_item)")
	levels := fs.String("levels", "", "upgrade levels: id=level,id=level (set_upgrade_levels)")
	list := fs.Bool("list", false, "list actions and exit")
	_ = fs.Parse(args)

	if *list {
		for _, a := range adminhttp.Actions() {
			fmt.Println(a)
		}
		return
	}
	body, err := overrideBody(*action, *value, *item, *autoEquip, *levels)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	c.run(http.MethodPost, "/admin/v1/override", body)
}

// overrideBody builds the /override request from flag values.
func overrideBody(action, value, item string, autoEquip bool, levels string) ([]byte, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, fmt.Errorf("missing -action")
	}
	req := map[string]any{"action": action}
	if v := strings.TrimSpace(value); v != "" {
		if gjson.Valid(v) {
			req["value"] = json.RawMessage(v)
		} else {
			req["value"] = v
		}
	}
	if item != "" {
		req["item"] = item
		req["auto_equip"] = autoEquip
	}
	if levels = strings.TrimSpace(levels); levels != "" {
		m := map[string]int{}
		for _, part := range strings.Split(levels, ",") {
			id, lv, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				return nil, fmt.Errorf("bad -levels entry %q", part)
			}
			n, err := strconv.Atoi(strings.TrimSpace(lv))
			if err != nil {
				return nil, fmt.Errorf("bad level for %s: %w", id, err)
			}
			m[strings.TrimSpace(id)] = n
		}
		req["levels"] = m
	}
	return json.Marshal(req)
}

func (c *client) run(method, path string, body []byte) {
	out, status, err := c.do(method, path, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	fmt.Println(c.render(out))
	if status/100 != 2 {
		os.Exit(1)
	}
}

func (c *client) do(method, path string, body []byte) ([]byte, int, error) {
	u := strings.TrimRight(strings.TrimSpace(c.base), "/") + path
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(adminhttp.KeyHeader, c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

func (c *client) render(b []byte) string {
	if c.field != "" && gjson.ValidBytes(b) {
		return gjson.GetBytes(b, c.field).String()
	}
	return strings.TrimSpace(string(b))
}
