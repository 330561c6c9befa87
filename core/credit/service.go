package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-credits/core"
)

var (
	// errors
	ErrInsufficientFunds   = errors.New("insufficient credits")
	ErrPackageNotFound     = errors.New("credit package not found")
	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrInvalidOwner        = core.NewArgumentError("owner is required")

	// NowFunc returns the current UTC time, overridable in tests.
	NowFunc = func() time.Time { return time.Now().UTC() }
)

type (
	Repository interface {
		// WithinTx runs fn against a Repository bound to a single unit of work:
		// every write fn makes is persisted if fn returns nil, none otherwise.
		WithinTx(ctx context.Context, fn func(repo Repository) error) error

		// GetBalance returns the owner's balance, creating a zeroed one on first access.
		GetBalance(ctx context.Context, owner string) (Balance, error)
		// Credit adds `amount` to the owner's current & purchased credits.
		Credit(ctx context.Context, owner string, amount int64, at time.Time) (Balance, error)
		// Debit removes `amount` from the owner's current credits and adds it to the consumed ones,
		// only if current >= amount: ErrInsufficientFunds is returned otherwise and nothing changes.
		// the check and the update are one atomic step.
		Debit(ctx context.Context, owner string, amount int64, at time.Time) (Balance, error)

		QueryActivePackages(ctx context.Context) ([]Package, error)
		GetPackage(ctx context.Context, id string) (Package, error)
		QueryCosts(ctx context.Context) ([]CostEntry, error)
		GetCostEntry(ctx context.Context, documentType string) (CostEntry, error)

		CreateTransaction(ctx context.Context, trx Transaction) (Transaction, error)
		CreateUsageEntry(ctx context.Context, entry UsageEntry) (UsageEntry, error)
		// QueryTransactions & QueryUsageEntries return the owner's records, most recent first.
		QueryTransactions(ctx context.Context, owner string, page core.Page) ([]Transaction, error)
		QueryUsageEntries(ctx context.Context, owner string, page core.Page) ([]UsageEntry, error)
	}

	// Metrics records ledger activity. outcome is one of the Outcome* constants or "unknown_document_type";
	// documentType is a cost table entry, or "unknown" for the latter.
	Metrics interface {
		ObservePurchase(packageID, paymentMethod string, credits int64)
		ObserveConsumption(documentType, outcome string, debited int64)
	}

	// DocumentGenerator renders a document once its cost has been debited.
	// a failure is logged; the debit is never reverted.
	DocumentGenerator interface {
		Generate(ctx context.Context, usage UsageEntry) error
	}

	Service interface {
		GetBalance(ctx context.Context, owner string) (Balance, error)
		ListActivePackages(ctx context.Context) ([]Package, error)
		ListCosts(ctx context.Context) ([]CostEntry, error)
		GetCost(ctx context.Context, documentType string) (CostEntry, error)
		Purchase(ctx context.Context, owner string, np NewPurchase) (Receipt, error)
		Consume(ctx context.Context, owner string, nc NewConsumption) (Consumption, error)
		ListTransactions(ctx context.Context, owner string, page core.Page) ([]Transaction, error)
		ListUsage(ctx context.Context, owner string, page core.Page) ([]UsageEntry, error)
	}

	Option func(svc *service)

	service struct {
		repo      Repository
		mailSvc   core.EmailService
		logger    core.Logger
		metrics   Metrics
		generator DocumentGenerator
		pageConf  core.CreditConfig
	}
)

var _ Service = (*service)(nil) // interface compliance check

const (
	unknownDocumentTypeOutcome = "unknown_document_type"
	// unknown types share one label: request input never becomes a metrics label value
	unknownDocumentTypeLabel = "unknown"
)

func WithMetrics(m Metrics) Option {
	return func(svc *service) { svc.metrics = m }
}

func WithDocumentGenerator(g DocumentGenerator) Option {
	return func(svc *service) { svc.generator = g }
}

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config, opts ...Option) Service {
	svc := &service{
		repo:     repo,
		mailSvc:  mailSvc,
		logger:   logger,
		metrics:  nopMetrics{},
		pageConf: conf.Credit,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func cleanOwner(owner string) (string, error) {
	owner = core.CleanString(owner)
	if owner == "" {
		return "", ErrInvalidOwner
	}
	return owner, nil
}

func (svc *service) GetBalance(ctx context.Context, owner string) (Balance, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return Balance{}, err
	}
	return svc.repo.GetBalance(ctx, owner)
}

func (svc *service) ListActivePackages(ctx context.Context) ([]Package, error) {
	return svc.repo.QueryActivePackages(ctx)
}

func (svc *service) ListCosts(ctx context.Context) ([]CostEntry, error) {
	return svc.repo.QueryCosts(ctx)
}

func (svc *service) GetCost(ctx context.Context, documentType string) (CostEntry, error) {
	return svc.repo.GetCostEntry(ctx, core.CleanString(documentType, true /* lower */))
}

// Purchase credits the owner with the package's credits and records the transaction, atomically.
// a receipt is mailed (after commit) when np.ReceiptEmail is set.
func (svc *service) Purchase(ctx context.Context, owner string, np NewPurchase) (Receipt, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return Receipt{}, err
	}

	pkg, err := svc.repo.GetPackage(ctx, core.CleanString(np.PackageID))
	if err != nil {
		return Receipt{}, err
	}
	if !pkg.IsActive {
		return Receipt{}, ErrPackageNotFound
	}

	now := NowFunc()
	var rcpt Receipt
	err = svc.repo.WithinTx(ctx, func(repo Repository) error {
		bal, err := repo.Credit(ctx, owner, pkg.Credits, now)
		if err != nil {
			return err
		}
		trx, err := repo.CreateTransaction(ctx, Transaction{
			Owner:         owner,
			PackageID:     pkg.ID,
			Credits:       pkg.Credits,
			Price:         pkg.Price,
			Currency:      pkg.Currency,
			PaymentMethod: np.PaymentMethod,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		rcpt = Receipt{Balance: bal, Transaction: trx}
		return nil
	})
	if err != nil {
		return Receipt{}, errors.Wrap(err, "purchasing credits")
	}

	svc.metrics.ObservePurchase(pkg.ID, np.PaymentMethod, pkg.Credits)
	svc.logger.Info(
		fmt.Sprintf("%s bought %d credits (package %s)", owner, pkg.Credits, pkg.ID),
		core.Person{ID: owner},
	)
	if np.ReceiptEmail != "" && svc.mailSvc != nil {
		svc.sendReceiptMail(np.ReceiptEmail, pkg, rcpt)
	}
	return rcpt, nil
}

// Consume debits the document type's cost from the owner's balance and logs the usage, atomically.
// nothing is debited nor logged when funds are insufficient (ErrInsufficientFunds).
// the configured DocumentGenerator runs only after the debit is committed.
func (svc *service) Consume(ctx context.Context, owner string, nc NewConsumption) (Consumption, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return Consumption{}, err
	}

	docType := core.CleanString(nc.DocumentType, true /* lower */)
	cost, err := svc.repo.GetCostEntry(ctx, docType)
	if err != nil {
		if errors.Cause(err) == ErrUnknownDocumentType {
			svc.metrics.ObserveConsumption(unknownDocumentTypeLabel, unknownDocumentTypeOutcome, 0)
		}
		return Consumption{}, err
	}

	now := NowFunc()
	var cons Consumption
	err = svc.repo.WithinTx(ctx, func(repo Repository) error {
		var (
			bal Balance
			err error
		)
		if cost.Cost > 0 {
			bal, err = repo.Debit(ctx, owner, cost.Cost, now)
		} else {
			bal, err = repo.GetBalance(ctx, owner)
		}
		if err != nil {
			return err
		}
		usage, err := repo.CreateUsageEntry(ctx, UsageEntry{
			Owner:        owner,
			DocumentType: cost.DocumentType,
			Debited:      cost.Cost,
			Outcome:      OutcomeSuccess,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		cons = Consumption{Balance: bal, Usage: usage}
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrInsufficientFunds {
			svc.metrics.ObserveConsumption(cost.DocumentType, OutcomeInsufficientFunds, 0)
			return Consumption{}, ErrInsufficientFunds
		}
		return Consumption{}, errors.Wrap(err, "consuming credits")
	}
	svc.metrics.ObserveConsumption(cost.DocumentType, OutcomeSuccess, cost.Cost)

	if svc.generator != nil {
		if err := svc.generator.Generate(ctx, cons.Usage); err != nil {
			svc.logger.Error(
				fmt.Sprintf("generating %s (usage %s): %v", docType, cons.Usage.ID, err),
				err,
				core.Person{ID: owner},
			)
		}
	}
	return cons, nil
}

func (svc *service) cleanPage(page core.Page) core.Page {
	page.Clean(svc.pageConf.DefaultPageSize, svc.pageConf.MaxPageSize)
	return page
}

func (svc *service) ListTransactions(ctx context.Context, owner string, page core.Page) ([]Transaction, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryTransactions(ctx, owner, svc.cleanPage(page))
}

func (svc *service) ListUsage(ctx context.Context, owner string, page core.Page) ([]UsageEntry, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryUsageEntries(ctx, owner, svc.cleanPage(page))
}

type nopMetrics struct{}

func (nopMetrics) ObservePurchase(string, string, int64)    {}
func (nopMetrics) ObserveConsumption(string, string, int64) {}
