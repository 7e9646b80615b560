package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ironicviking/max-pixels-sub000/analytics"
	"github.com/ironicviking/max-pixels-sub000/logging"
	"github.com/ironicviking/max-pixels-sub000/server"
)

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; flags still win over it.
	godotenv.Load()

	addr := flag.String("addr", envOr("RELAY_ADDR", ":8080"), "HTTP listen address")
	clientDir := flag.String("client", envOr("RELAY_CLIENT_DIR", ""), "Path to browser client directory (empty disables static serving)")
	dbPath := flag.String("db", envOr("RELAY_DB", ""), "Path to analytics SQLite database (empty disables analytics)")
	logFile := flag.String("log", envOr("RELAY_LOG", ""), "Path to log file (empty logs to stderr)")
	flag.Parse()

	log := logging.New(*logFile)
	defer log.Sync()

	var rec *analytics.Recorder
	if *dbPath != "" {
		var err error
		rec, err = analytics.Open(*dbPath, log)
		if err != nil {
			log.Fatalw("open analytics db", "path", *dbPath, "err", err)
		}
	}

	hub := server.NewHub(log, rec)
	go hub.Run()

	sched := server.NewScheduler(hub, server.SweepInterval)
	go sched.Run()

	mux := server.SetupRoutes(hub, *clientDir)
	srv := &http.Server{Addr: *addr, Handler: mux}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infow("relay listening", "addr", *addr)
		if *clientDir != "" {
			log.Infow("serving client files", "dir", *clientDir)
		}
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalw("listen", "err", err)
		}
	}()

	<-stop
	log.Info("shutting down")
	sched.Stop()
	srv.Close()
	rec.Stop()
}
