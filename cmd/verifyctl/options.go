package main

import (
	"time"

	config "github.com/goldkiwi/storefront/configs"
	"github.com/spf13/pflag"
)

type options struct {
	kind     string
	apiURL   string
	email    string
	sent     int64
	username string
	name     string
	tick     time.Duration
	timeout  time.Duration
	cookies  []string
	logLevel string
}

// bindFlags registers the command's flags on fs. Defaults for the auth
// service come from cfg, so .env and the environment apply unless a flag
// overrides them.
func bindFlags(fs *pflag.FlagSet, cfg *config.Config) *options {
	o := &options{}
	fs.StringVarP(&o.kind, "flow", "f", "signup", "flow to run: signup, password-reset, email-change, find-username")
	fs.StringVar(&o.apiURL, "api", cfg.AuthAPI.BaseURL, "auth service base URL (AUTH_API_URL)")
	fs.StringVarP(&o.email, "email", "e", "", "email address to start with")
	fs.Int64Var(&o.sent, "sent", 0, "unix milliseconds the code was sent at; resumes the awaiting-code step")
	fs.StringVarP(&o.username, "username", "u", "", "username (signup)")
	fs.StringVarP(&o.name, "name", "n", "", "display name")
	fs.DurationVar(&o.tick, "tick", time.Second, "countdown refresh interval")
	fs.DurationVar(&o.timeout, "timeout", cfg.AuthAPI.Timeout, "per-request timeout (AUTH_API_TIMEOUT)")
	fs.StringArrayVar(&o.cookies, "cookie", nil, "session cookie name=value for the auth service (repeatable)")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	return o
}
