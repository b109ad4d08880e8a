package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"clientdesk.org/internal/auth"
	"clientdesk.org/internal/config"
	"clientdesk.org/internal/customer"
	"clientdesk.org/internal/httpapi"
	"clientdesk.org/internal/mailer"
	"clientdesk.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.Database.DSN == "" {
		log.Fatal("missing database DSN: set CLIENTDESK_DATABASE_DSN")
	}
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	codec, err := auth.NewCodec(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var mail mailer.Mailer = mailer.Log{}
	if cfg.SMTP.Addr != "" {
		mail, err = mailer.NewSMTP(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.ConfirmURL)
		if err != nil {
			log.Fatalf("mailer: %v", err)
		}
	}

	authSvc, err := auth.NewService(auth.NewPGStore(db), codec,
		auth.WithMailer(mail),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithConfirmTTL(cfg.Auth.ConfirmTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	customerSvc, err := customer.NewService(customer.NewPGStore(db))
	if err != nil {
		log.Fatalf("customer service: %v", err)
	}

	policy := auth.DefaultPolicy()
	if cfg.Auth.PolicyFile != "" {
		policy, err = auth.LoadPolicy(cfg.Auth.PolicyFile)
		if err != nil {
			log.Fatalf("access policy: %v", err)
		}
	}

	api := httpapi.New(httpapi.Options{
		Auth:               authSvc,
		Customers:          customerSvc,
		Policy:             policy,
		ReadyProbe:         httpapi.ReadyProbe{DB: db},
		Version:            version,
		CORSOrigins:        cfg.CORS.Origins,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSec,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	log.Printf("Starting clientdesk-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
