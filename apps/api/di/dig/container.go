package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-credits/apps/api/echo"
	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
	emailsvc "github.com/trezcool/masomo-credits/services/email"
	logsvc "github.com/trezcool/masomo-credits/services/logger"
	metricsvc "github.com/trezcool/masomo-credits/services/metrics"
	"github.com/trezcool/masomo-credits/storage/database"
	inmemdb "github.com/trezcool/masomo-credits/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-credits/storage/database/sqlx"
)

// EngineInMemory runs the API against a seeded in-memory ledger (local demos, no PostgreSQL).
const EngineInMemory = "inmem"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBCloser releases the storage opened by the container.
type DBCloser func() error

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newCreditRepository(conf *core.Config, loggerParam DBLoggerParam) (credit.Repository, DBCloser) {
	if conf.Database.Engine == EngineInMemory {
		loggerParam.Logger.Warn("using the in-memory ledger: nothing is persisted")
		return inmemdb.NewCreditRepository(inmemdb.OpenSeeded()), func() error { return nil }
	}

	setUp := func() (core.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return sqlxrepos.NewCreditRepository(db), db.Close
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger, conf)
	}
	return emailsvc.NewSendgridService(logger, conf)
}

func newCreditService(
	repo credit.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
	metrics *metricsvc.CreditMetrics,
) credit.Service {
	return credit.NewService(repo, mailSvc, logger, conf, credit.WithMetrics(metrics))
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newCreditRepository))
	must(c.Provide(newEmailService))
	must(c.Provide(metricsvc.NewCreditMetrics))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newCreditService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
