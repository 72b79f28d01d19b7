package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/examguard/agent/internal/activity"
	"github.com/examguard/agent/internal/config"
	"github.com/examguard/agent/internal/devserver"
	"github.com/examguard/agent/internal/report"
	"github.com/examguard/agent/internal/session"
	"github.com/examguard/agent/internal/sim"
	"github.com/examguard/agent/internal/violation"
)

func main() {
	simMode := flag.Bool("sim", false, "Run the scripted demo against the simulated platform")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	subject := flag.String("subject", "demo-subject", "Subject ID to register the session under")
	flag.Parse()

	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Printf("No config file at %s, using defaults", *configPath)
		cfg = config.Default()
	}
	if token := os.Getenv("EXAMGUARD_TOKEN"); token != "" {
		cfg.Backend.Token = token
	}

	if !*simMode {
		log.Fatal("examguard runs embedded in an exam host; use -sim for the scripted demo")
	}

	// The demo hosts its own backend so it works without infrastructure.
	addr, err := backendAddr(cfg.Backend.BaseURL)
	if err != nil {
		log.Fatalf("Bad backend base_url: %v", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}
	mux := http.NewServeMux()
	devserver.New(cfg.Backend.Token).SetupRoutes(mux)
	go func() {
		if err := http.Serve(ln, mux); err != nil {
			log.Printf("Dev backend stopped: %v", err)
		}
	}()
	log.Printf("Dev backend listening on %s", addr)

	var journal *report.Journal
	if cfg.Report.JournalPath != "" {
		journal, err = report.OpenJournal(cfg.Report.JournalPath)
		if err != nil {
			log.Fatalf("Failed to open violation journal: %v", err)
		}
		defer journal.Close()
	}

	reporter := report.NewReporter(report.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Token:          cfg.Backend.Token,
		RequestTimeout: cfg.Report.RequestTimeout,
		RetryDelay:     cfg.Report.RetryDelay,
		Journal:        journal,
	})
	defer reporter.Close()

	p := sim.NewPlatform()
	ctrl := session.New(session.Options{
		Config:   cfg,
		Platform: p.Capabilities(),
		Reporter: reporter,
		Policy: session.Policy{
			SubjectID:         *subject,
			RequireFullscreen: true,
			RequireTabFocus:   true,
			OnViolation: func(v violation.Violation) {
				log.Printf("[demo] violation: kind=%s severity=%s", v.Kind, v.Severity)
			},
			OnActivityUpdate: func(snap activity.Snapshot) {
				log.Printf("[demo] heartbeat: elapsed=%ds violations=%d active=%t",
					snap.ElapsedSeconds, snap.ViolationCount, snap.IsActive)
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	go sim.NewScript(p).Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	ctrl.Stop()

	sum := ctrl.ViolationSummary()
	log.Printf("Session %s finished: %d violations (%d high severity)",
		ctrl.SessionID(), sum.Total, sum.BySeverity[violation.High])
}

// backendAddr extracts the listen address from the configured base URL.
func backendAddr(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(host, "8080")
	}
	return host, nil
}
