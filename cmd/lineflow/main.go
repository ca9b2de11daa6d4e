package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"lineflow/archive"
	"lineflow/config"
	"lineflow/engine"
	"lineflow/iot"
	"lineflow/messaging"
	"lineflow/poststate"
	"lineflow/store"
	"lineflow/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "lineflow.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("lineflow", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("lineflow: database open (%s)", cfg.Database.Driver)

	// Redis
	var redisStore *poststate.RedisStore
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("lineflow: redis not available (%v), running without cache", err)
		} else {
			log.Printf("lineflow: redis connected (%s)", cfg.Redis.Address)
			redisStore = poststate.NewRedisStore(redisClient)
		}
		cancel()
		defer redisClient.Close()
	}
	postState := poststate.NewManager(db, redisStore)

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("lineflow: messaging connect failed (%v)", err)
	} else {
		log.Printf("lineflow: messaging ready (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Report archive
	var archiver *archive.Uploader
	if cfg.Archive.Enabled {
		archiver, err = archive.New(&cfg.Archive)
		if err != nil {
			log.Fatalf("archive: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := archiver.EnsureBucket(ctx); err != nil {
			log.Printf("lineflow: archive bucket not ready (%v)", err)
		} else {
			log.Printf("lineflow: archiving order reports to %s/%s", cfg.Archive.Endpoint, cfg.Archive.Bucket)
		}
		cancel()
	}

	// Sensor and trigger provider
	provider, err := iot.New(cfg.Provider, cfg.Line.Route, nil, log.Printf)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		PostState:  postState,
		MsgClient:  msgClient,
		Provider:   provider,
		Archive:    archiver,
		Debug:      cfg.Debug,
	})
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("lineflow: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("lineflow: line %s ready (%s provider, %d posts)", cfg.Line.ID, provider.Name(), len(cfg.Line.Route))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("lineflow: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("lineflow: stopped")
}
