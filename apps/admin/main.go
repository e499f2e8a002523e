package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/task"
	"github.com/trezcool/colegio/core/user"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database"
	"github.com/trezcool/colegio/storage/database/sqlxrepos"
	"github.com/trezcool/colegio/storage/objectstore"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf, "admin")
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	store, err := objectstore.New(context.Background(), conf.Storage)
	if err != nil {
		logger.Fatal("setting up object storage", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	document.InitValidators(validate, translator)
	task.InitValidators(validate, translator)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate)
	quotaSvc := quota.NewService(sqlxrepos.NewQuotaRepository(db), logger, validate, conf.Quota)

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db,
		usrSvc:   usrSvc,
		docSvc:   document.NewService(sqlxrepos.NewDocumentRepository(db), usrSvc, quotaSvc, store, logger, validate),
		quotaSvc: quotaSvc,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	_ = zl.Sync()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %+v\n", err)
		}
		os.Exit(1)
	}
}
