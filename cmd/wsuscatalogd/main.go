// Command wsuscatalogd is the catalog mirror daemon: it loads
// configuration, opens the package store, wires the upstream sync sources,
// the downstream SOAP server, the job queue and the admin API, then serves
// until signalled: load config, connect auxiliary services, build the
// server, register job handlers, start background loops, block on
// signal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/wsuscatalog/wsuscatalog/internal/adminapi"
	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
	"github.com/wsuscatalog/wsuscatalog/internal/config"
	"github.com/wsuscatalog/wsuscatalog/internal/contentstore"
	"github.com/wsuscatalog/wsuscatalog/internal/db"
	"github.com/wsuscatalog/wsuscatalog/internal/downstream"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/jobqueue"
	"github.com/wsuscatalog/wsuscatalog/internal/progress"
	"github.com/wsuscatalog/wsuscatalog/internal/scheduler"
	"github.com/wsuscatalog/wsuscatalog/internal/sources"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/synchistory"
	"github.com/wsuscatalog/wsuscatalog/internal/upstream"
	"github.com/wsuscatalog/wsuscatalog/internal/version"
)

const bannerArt = `
 __      __ ____  _    _  _____  _____       _        _
 \ \    / /|  _ \| |  | |/ ____|/ ____|     | |      | |
  \ \  / / | |_) | |  | | (___ | |     __ _| |_ __ _| | ___   __ _
   \ \/ /  |  _ <| |  | |\___ \| |    / _' | __/ _' | |/ _ \ / _' |
    \  /   | |_) | |__| |____) | |___| (_| | || (_| | | (_) | (_| |
     \/    |____/ \____/|_____/ \_____\__,_|\__\__,_|_|\___/ \__, |
                                                               __/ |
                                                              |___/`

func main() {
	v := version.Load()
	log.Println(bannerArt)
	log.Printf("wsuscatalogd %s starting", v.Version)

	cfg := config.Load()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer database.Close()
	if err := db.MigrateUp(database, cfg.MigrationsPath); err != nil {
		log.Fatalf("database migrate: %v", err)
	}
	history := synchistory.NewRepository(database)

	st, err := store.OpenOrCreate(cfg.MetadataPath)
	if err != nil {
		log.Fatalf("open package store: %v", err)
	}
	if st.IsReindexingRequired() {
		log.Println("package store requires reindexing; serving with full-enumeration fallback until a reindex completes")
	}

	var content *contentstore.Store
	if cfg.ContentEnabled() {
		content = contentstore.New(cfg.ContentPath)
		log.Printf("content store mounted at %s", cfg.ContentPath)
	} else {
		log.Println("no content-path configured; serving catalog-only sync")
	}

	downstreamCfg, err := loadServerSyncConfig(cfg)
	if err != nil {
		log.Fatalf("load service-config-json: %v", err)
	}
	downstreamSrv := downstream.NewServer(downstreamCfg, content)
	if err := downstreamSrv.SetPackageStore(st); err != nil {
		log.Fatalf("build served state: %v", err)
	}

	upstreamClient := upstream.New(
		cfg.UpstreamEndpoint, cfg.UpstreamAccount, cfg.UpstreamAccountGUID,
		cfg.SendTimeout, cfg.ReceiveTimeout, cfg.RetryAttempts, cfg.RetrySleep,
	)
	updatesFilter, err := loadUpdatesFilter(cfg)
	if err != nil {
		log.Fatalf("parse product/classification filter: %v", err)
	}
	categoriesSource := sources.NewCategoriesSource(upstreamClient)
	updatesSource := sources.NewUpdatesSource(upstreamClient, updatesFilter)

	hub := progress.NewHub()

	queue := jobqueue.NewQueue(cfg.RedisAddr)
	syncHandler := &jobqueue.UpstreamSyncHandler{
		Categories: categoriesSource,
		Updates:    updatesSource,
		Store:      st,
		Downstream: downstreamSrv,
		History:    history,
		Hub:        hub,
	}
	reindexHandler := &jobqueue.ReindexStoreHandler{
		Store:      st,
		Downstream: downstreamSrv,
		History:    history,
		Hub:        hub,
	}
	jobqueue.RegisterHandlers(queue, syncHandler, reindexHandler)

	go func() {
		if err := queue.Start(context.Background()); err != nil {
			log.Printf("job queue worker stopped: %v", err)
		}
	}()
	defer queue.Stop()

	if strings.TrimSpace(cfg.SyncCron) != "" {
		sched := scheduler.New(cfg.SyncCron, func() {
			if _, err := queue.EnqueueUpstreamSync("scheduled"); err != nil {
				log.Printf("scheduler: enqueue sync: %v", err)
			}
		})
		if err := sched.Start(); err != nil {
			log.Fatalf("start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	auth := adminapi.NewAuthenticator(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.AdminTokenTTL)
	admin := adminapi.NewServer(auth, st, queue, history, hub, downstreamSrv)

	adminSrv := &http.Server{Addr: portAddr(cfg.AdminPort), Handler: admin.Handler()}
	go func() {
		log.Printf("admin API listening on %s", adminSrv.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("admin API server error: %v", err)
		}
	}()
	defer adminSrv.Close()

	catalogSrv := &http.Server{Addr: portAddr(cfg.Port), Handler: downstreamSrv.Handler()}
	go func() {
		log.Printf("catalog server listening on %s", catalogSrv.Addr)
		if err := catalogSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("catalog server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SendTimeout)
	defer cancel()
	_ = catalogSrv.Shutdown(ctx)

	if err := st.Flush(); err != nil {
		log.Printf("final flush error: %v", err)
	}
}

// loadServerSyncConfig parses cfg.ServiceConfigJSON into the
// ServerSyncConfigData the downstream server echoes verbatim; an empty
// string falls back to a conservative default rather than
// failing startup.
func loadServerSyncConfig(cfg *config.Config) (downstream.ServerSyncConfigData, error) {
	data := downstream.ServerSyncConfigData{
		MaxNumberOfUpdatesPerRequest: 100,
		ProtocolVersion:              "1.8",
		CatalogOnlySync:              !cfg.ContentEnabled(),
	}
	if strings.TrimSpace(cfg.ServiceConfigJSON) == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(cfg.ServiceConfigJSON), &data); err != nil {
		return downstream.ServerSyncConfigData{}, fmt.Errorf("service-config-json (%v): %w", err, catalogerr.ErrMissingConfiguration)
	}
	data.CatalogOnlySync = !cfg.ContentEnabled()
	return data, nil
}

// loadUpdatesFilter parses the comma-separated GUID lists from config into
// the sources.Filter the UpdatesSource scopes its pull by.
func loadUpdatesFilter(cfg *config.Config) (sources.Filter, error) {
	products, err := parseGUIDList(cfg.ProductFilter)
	if err != nil {
		return sources.Filter{}, err
	}
	classifications, err := parseGUIDList(cfg.ClassificationFilter)
	if err != nil {
		return sources.Filter{}, err
	}
	return sources.Filter{Products: products, Classifications: classifications}, nil
}

func parseGUIDList(csv string) ([]identity.GUID, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	var out []identity.GUID
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g, err := identity.GUIDFromString(part)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
