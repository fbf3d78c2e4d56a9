package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dbplane/controlplane/catalog"
	"dbplane/controlplane/config"
	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/provision"
	"dbplane/controlplane/routing"
	"dbplane/controlplane/schema"
	"dbplane/controlplane/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	slogmulti "github.com/samber/slog-multi"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func initLogging(logFilePath string) func() {
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	if logFilePath == "" {
		slog.SetDefault(slog.New(textHandler))
		return func() {}
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}

	jsonHandler := slog.NewJSONHandler(logFile, nil).WithAttrs([]slog.Attr{
		slog.String("service_type", "dbplane"),
	})

	slog.SetDefault(slog.New(slogmulti.Fanout(jsonHandler, textHandler)))
	slog.Info("logging initialized", "log_file", logFile.Name())

	return func() { logFile.Close() }
}

func initCatalogDb(uri string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening catalog database connection: %v", err)
	}

	err = schema.Migrate(db)
	if err != nil {
		log.Fatalf("error migrating catalog schema: %v", err)
	}

	return db
}

func loadDefaultSchema(path string) *dbschema.SchemaDefinition {
	if path == "" {
		return nil
	}
	def, err := dbschema.LoadFile(path)
	if err != nil {
		log.Fatalf("error loading default schema from '%v': %v", path, err)
	}
	slog.Info("loaded default tenant schema", "path", path, "name", def.Name)
	return def
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	closeLog := initLogging(cfg.LogFile)
	defer closeLog()

	db := initCatalogDb(cfg.CatalogUri)

	cat := catalog.New(catalog.NewGormStore(db), cfg.CacheTtl)

	router := routing.NewStoreRouter()

	orchestrator := provision.NewOrchestrator(
		cat,
		&provision.PostgresStore{
			AdminDsn:   cfg.RelationalAdminDsn,
			DbTemplate: cfg.RelationalDbTemplate,
			Router:     router,
		},
		&provision.MongoStore{Router: router},
		provision.Templates{
			RelationalDsn: cfg.RelationalDsnTemplate,
			DocumentUri:   cfg.DocumentUriTemplate,
			DocumentDb:    cfg.DocumentDbTemplate,
		},
		cfg.TenantIdRetries,
		loadDefaultSchema(cfg.DefaultSchemaPath),
	)

	controlPlane := services.NewControlPlane(cat, orchestrator, router, cfg.MaxQueryRows, []byte(cfg.JwtSecret))

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", controlPlane.Routes())

	server := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdown
		slog.Info("shutdown signal received, stopping server")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during server shutdown", "error", err)
		}
	}()

	slog.Info("starting server", "addr", cfg.ListenAddr)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen and serve returned error: %v", err)
	}
}
