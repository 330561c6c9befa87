package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
	emailsvc "github.com/trezcool/masomo-credits/services/email"
	logsvc "github.com/trezcool/masomo-credits/services/logger"
	"github.com/trezcool/masomo-credits/storage/database"
	sqlxrepos "github.com/trezcool/masomo-credits/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(false)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	credit.InitValidators(validate, translator)
	core.ParseEmailTemplates(appLogger)

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(logger, appLogger, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(appLogger, conf)
	}

	// start CLI
	cli := commandLine{
		conf:      conf,
		migrator:  newMigrator(db.DB),
		creditSvc: credit.NewService(sqlxrepos.NewCreditRepository(db), mailSvc, appLogger, conf),
		validate:  validate,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
