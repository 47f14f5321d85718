// Command verifyctl runs a verification flow against the auth service from a
// terminal, with a live countdown while a code is outstanding.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	config "github.com/goldkiwi/storefront/configs"
	"github.com/goldkiwi/storefront/internal/application/services"
	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/goldkiwi/storefront/internal/infrastructure/authapi"
	"github.com/goldkiwi/storefront/internal/infrastructure/memory"
	"github.com/goldkiwi/storefront/internal/infrastructure/repositories"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	// .env and environment supply the defaults; flags override them.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	opts := bindFlags(pflag.CommandLine, cfg)
	pflag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(opts.logLevel); err == nil {
		logger.SetLevel(level)
	}

	kind, err := flow.ParseKind(opts.kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client, err := authapi.NewClient(&config.AuthAPIConfig{
		BaseURL:   opts.apiURL,
		Timeout:   opts.timeout,
		CookieJar: true,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize auth API client:", err)
	}
	seed, err := parseCookies(opts.cookies)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := client.SeedCookies(seed); err != nil {
		logger.Fatal("Failed to seed cookies:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := services.NewFlowService(
		repositories.NewFlowCacheRepository(memory.NewCache()),
		client,
		nil,
		&services.FlowServiceConfig{RequestTimeout: opts.timeout},
		logger,
	)

	// An email without a send time only prefills the address.
	resume := verification.ResumeParams{Username: opts.username, Name: opts.name}
	if opts.sent > 0 {
		resume.Email = opts.email
		resume.SentAt = time.UnixMilli(opts.sent)
	}
	f, err := svc.Start(ctx, kind, resume)
	if err == nil && opts.sent <= 0 && opts.email != "" {
		f, err = svc.Update(ctx, f.ID, ports.FieldChanges{Email: &opts.email})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not start flow:", err)
		os.Exit(1)
	}

	timer := services.NewCountdownTimer(opts.tick, svc.Now)
	defer timer.Stop()

	con := newConsole(svc, f.ID, os.Stdout, timer)
	con.show(f)
	con.printHelp()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			con.discard(context.Background())
			return
		case line, ok := <-lines:
			if !ok {
				con.discard(ctx)
				return
			}
			if done := con.exec(ctx, line); done {
				con.discard(ctx)
				return
			}
		case st := <-timer.C():
			con.tick(ctx, st)
		}
	}
}

func parseCookies(raw []string) ([]*http.Cookie, error) {
	out := make([]*http.Cookie, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --cookie %q: want name=value", kv)
		}
		out = append(out, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out, nil
}
