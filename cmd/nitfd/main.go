package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/server"
)

func setupLogging(cfg server.Config) (io.Closer, error) {
	rotator, err := common.RotatingWriter(cfg.Logs)
	if err != nil {
		return nil, err
	}
	w := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(w)
	return rotator, nil
}

func main() {
	configPath := flag.String("config", "config/nitfd.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config addr)")
	readTimeout := flag.Duration("read-timeout", 0, "HTTP read header timeout (overrides config)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	rotator, err := setupLogging(cfg)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer rotator.Close()

	listenAddr := cfg.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	timeout := *readTimeout
	if timeout == 0 {
		timeout, err = time.ParseDuration(cfg.ReadTimeout)
		if err != nil {
			log.Fatalf("readTimeout %q: %v", cfg.ReadTimeout, err)
		}
	}

	srv, err := server.NewServer(cfg.Options())
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := server.NewRouter(srv)
	sc := echo.StartConfig{
		Address: listenAddr,
		BeforeServeFunc: func(hs *http.Server) error {
			hs.ReadHeaderTimeout = timeout
			return nil
		},
	}
	log.Printf("nitfd listening on %s (mmap=%v)", listenAddr, cfg.UseMmap)
	if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("serve: %v", err)
	}
	log.Println("nitfd stopped")
}
