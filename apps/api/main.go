package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	echoapi "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/task"
	"github.com/trezcool/colegio/core/user"
	appfs "github.com/trezcool/colegio/fs"
	emailsvc "github.com/trezcool/colegio/services/email"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/cache/rediscache"
	"github.com/trezcool/colegio/storage/database"
	"github.com/trezcool/colegio/storage/database/sqlxrepos"
	"github.com/trezcool/colegio/storage/objectstore"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := newLogger(conf, "api")
	defer func() { _ = logger.Sync() }()
	dbLogger := newLogger(conf, "db")

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up storage
	ctx := context.Background()
	store, err := objectstore.New(ctx, conf.Storage)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up object storage: %v", err), err)
	}
	if !conf.Storage.Configured() && conf.Storage.Driver != objectstore.DriverMemory {
		logger.Warn("object storage is not configured: uploads are disabled")
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	document.InitValidators(validate, translator)
	task.InitValidators(validate, translator)

	// set up services
	renderer := core.NewTemplateRenderer(appfs.EmailTemplates(), conf.FrontendBaseURL, conf.Debug)
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, renderer, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, renderer, logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate)
	quotaSvc := quota.NewService(sqlxrepos.NewQuotaRepository(db), logger, validate, conf.Quota)
	if conf.Redis.Address != "" {
		cache, err := rediscache.Open(ctx, conf.Redis)
		if err != nil {
			logger.Error(fmt.Sprintf("connecting to redis, usage snapshots will not be cached: %v", err), err)
		} else {
			defer func() { _ = cache.Close() }()
			quotaSvc = quotaSvc.WithCache(cache, conf.Redis.SnapshotTTL)
		}
	}
	docSvc := document.NewService(sqlxrepos.NewDocumentRepository(db), usrSvc, quotaSvc, store, logger, validate)
	taskSvc := task.NewService(db, sqlxrepos.NewTaskRepository(db), usrSvc, quotaSvc, store, mailSvc, logger, validate)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			DocumentSvc: docSvc,
			QuotaSvc:    quotaSvc,
			TaskSvc:     taskSvc,
			Validate:    validate,
			Translator:  translator,
			Registry:    registry,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newLogger(conf *core.Config, name string) *logsvc.RollbarLogger {
	zl, err := logsvc.NewZapLogger(conf, name)
	if err != nil {
		log.Fatalf("setting up %s logger: %v", name, err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
