package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	DefaultServer = "http://localhost:8080"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Client configures the callctl participant.
type Client struct {
	Server     string
	User       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// ClientOptions carries command line flags; empty fields fall back to
// the environment, then to defaults.
type ClientOptions struct {
	Server     string
	User       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

func LoadClient(opts ClientOptions) (*Client, error) {
	cfg := &Client{
		Server:     pick(opts.Server, "CALL_SERVER", DefaultServer),
		User:       pick(opts.User, "CALL_USER", ""),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
	}

	if cfg.User == "" {
		return nil, fmt.Errorf("user is required (--user or CALL_USER)")
	}
	u, err := url.Parse(cfg.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", cfg.Server)
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	return cfg, nil
}

// WebSocketURL is the notification endpoint matching Server.
func (c *Client) WebSocketURL() string {
	u, _ := url.Parse(c.Server)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func (c *Client) STUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

func (c *Client) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{c.TURNServer}
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}
