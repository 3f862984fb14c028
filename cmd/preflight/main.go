// Command preflight checks a deployment's environment before domainguard starts.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/domainguard/internal/config"
	"github.com/hamed0406/domainguard/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fail(err.Error())
		return 1
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		fail(err.Error())
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; POST /api/jobs/{job}/run is open to anyone.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys configured; GET /api/jobs is open.")
	}
	for name, keys := range map[string][]string{"ADMIN_API_KEYS": cfg.AdminAPIKeys, "PUBLIC_API_KEYS": cfg.PublicAPIKeys} {
		for _, k := range keys {
			if len(k) < 16 {
				warn(name + " contains a key shorter than 16 characters.")
				break
			}
		}
	}
	ok("API_ADDR=" + cfg.Addr)

	switch {
	case cfg.DatabaseURL != "":
		ok("DATABASE_URL present (postgres)")
	case cfg.SQLitePath != "":
		ok("SQLITE_PATH=" + cfg.SQLitePath)
	default:
		warn("neither DATABASE_URL nor SQLITE_PATH set; notification history is lost on restart and the 24h cooldown resets.")
	}

	emailOn := cfg.SMTP.Host != ""
	smsOn := cfg.SMS.GatewayURL != ""
	if emailOn {
		ok(fmt.Sprintf("SMTP %s:%d from %s", cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From))
	}
	if smsOn {
		if !strings.HasPrefix(cfg.SMS.GatewayURL, "https://") {
			warn("SMS_GATEWAY_URL is not https; the bearer token travels in clear text.")
		}
		ok("SMS gateway configured")
	}
	if !emailOn && !smsOn {
		fail("no notification transport configured (set SMTP_HOST and/or SMS_GATEWAY_URL).")
	}

	if failed {
		return 1
	}
	ok("preflight passed")
	return 0
}
