package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
)

const (
	balanceColumns     = "owner, current_credits, lifetime_purchased, lifetime_consumed, updated_at"
	packageColumns     = "id, name, description, price, currency, credits, is_active"
	costColumns        = "document_type, cost, category"
	transactionColumns = "id, owner, package_id, credits, price, currency, payment_method, created_at"
	usageColumns       = "id, owner, document_type, debited, outcome, created_at"
)

type (
	balanceRow struct {
		Owner     string    `db:"owner"`
		Current   int64     `db:"current_credits"`
		Purchased int64     `db:"lifetime_purchased"`
		Consumed  int64     `db:"lifetime_consumed"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	packageRow struct {
		ID          string          `db:"id"`
		Name        string          `db:"name"`
		Description null.String     `db:"description"`
		Price       decimal.Decimal `db:"price"`
		Currency    string          `db:"currency"`
		Credits     int64           `db:"credits"`
		IsActive    bool            `db:"is_active"`
	}

	costRow struct {
		DocumentType string `db:"document_type"`
		Cost         int64  `db:"cost"`
		Category     string `db:"category"`
	}

	transactionRow struct {
		ID            string          `db:"id"`
		Owner         string          `db:"owner"`
		PackageID     string          `db:"package_id"`
		Credits       int64           `db:"credits"`
		Price         decimal.Decimal `db:"price"`
		Currency      string          `db:"currency"`
		PaymentMethod string          `db:"payment_method"`
		CreatedAt     time.Time       `db:"created_at"`
	}

	usageRow struct {
		ID           string    `db:"id"`
		Owner        string    `db:"owner"`
		DocumentType string    `db:"document_type"`
		Debited      int64     `db:"debited"`
		Outcome      string    `db:"outcome"`
		CreatedAt    time.Time `db:"created_at"`
	}
)

func (r balanceRow) unrow() credit.Balance {
	return credit.Balance{
		Owner:     r.Owner,
		Current:   r.Current,
		Purchased: r.Purchased,
		Consumed:  r.Consumed,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r packageRow) unrow() credit.Package {
	return credit.Package{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Price:       r.Price,
		Currency:    r.Currency,
		Credits:     r.Credits,
		IsActive:    r.IsActive,
	}
}

func (r costRow) unrow() credit.CostEntry {
	return credit.CostEntry{DocumentType: r.DocumentType, Cost: r.Cost, Category: r.Category}
}

func (r transactionRow) unrow() credit.Transaction {
	return credit.Transaction{
		ID:            r.ID,
		Owner:         r.Owner,
		PackageID:     r.PackageID,
		Credits:       r.Credits,
		Price:         r.Price,
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (r usageRow) unrow() credit.UsageEntry {
	return credit.UsageEntry{
		ID:           r.ID,
		Owner:        r.Owner,
		DocumentType: r.DocumentType,
		Debited:      r.Debited,
		Outcome:      r.Outcome,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type creditRepository struct {
	db   core.DB // nil once bound to a transaction
	exec core.DBExecutor
}

var _ credit.Repository = (*creditRepository)(nil) // interface compliance check

func NewCreditRepository(db core.DB) credit.Repository {
	return &creditRepository{db: db, exec: db}
}

// trapNoRowsErr maps psql "no rows" err to `notFound`
func (repo *creditRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo *creditRepository) WithinTx(ctx context.Context, fn func(repo credit.Repository) error) (err error) {
	if repo.db == nil { // already within a transaction
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&creditRepository{exec: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back transaction: %v", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func (repo *creditRepository) GetBalance(ctx context.Context, owner string) (credit.Balance, error) {
	q := `INSERT INTO credit_balance (owner) VALUES ($1) ON CONFLICT (owner) DO NOTHING`
	if _, err := repo.exec.ExecContext(ctx, q, owner); err != nil {
		return credit.Balance{}, errors.Wrap(err, "initializing balance")
	}

	var row balanceRow
	q = `SELECT ` + balanceColumns + ` FROM credit_balance WHERE owner = $1`
	if err := repo.exec.GetContext(ctx, &row, q, owner); err != nil {
		return credit.Balance{}, errors.Wrap(err, "selecting balance")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) Credit(ctx context.Context, owner string, amount int64, at time.Time) (credit.Balance, error) {
	if amount <= 0 {
		return credit.Balance{}, credit.ErrInvalidAmount
	}

	var row balanceRow
	q := `
		INSERT INTO credit_balance AS b (owner, current_credits, lifetime_purchased, updated_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (owner) DO UPDATE SET
			current_credits = b.current_credits + EXCLUDED.current_credits,
			lifetime_purchased = b.lifetime_purchased + EXCLUDED.lifetime_purchased,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + balanceColumns
	if err := repo.exec.GetContext(ctx, &row, q, owner, amount, at.UTC()); err != nil {
		return credit.Balance{}, errors.Wrap(err, "crediting balance")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) Debit(ctx context.Context, owner string, amount int64, at time.Time) (credit.Balance, error) {
	if amount <= 0 {
		return credit.Balance{}, credit.ErrInvalidAmount
	}

	// the guard and the update are one statement: concurrent debits are serialized on the row lock
	// and the loser re-evaluates `current_credits >= $2` against the winner's result.
	var row balanceRow
	q := `
		UPDATE credit_balance SET
			current_credits = current_credits - $2,
			lifetime_consumed = lifetime_consumed + $2,
			updated_at = $3
		WHERE owner = $1 AND current_credits >= $2
		RETURNING ` + balanceColumns
	if err := repo.exec.GetContext(ctx, &row, q, owner, amount, at.UTC()); err != nil {
		return credit.Balance{}, repo.trapNoRowsErr(err, credit.ErrInsufficientFunds, "debiting balance")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) QueryActivePackages(ctx context.Context) ([]credit.Package, error) {
	var rows []packageRow
	q := `SELECT ` + packageColumns + ` FROM credit_package WHERE is_active ORDER BY price, credits, id`
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting packages")
	}
	pkgs := make([]credit.Package, 0, len(rows))
	for _, r := range rows {
		pkgs = append(pkgs, r.unrow())
	}
	return pkgs, nil
}

func (repo *creditRepository) GetPackage(ctx context.Context, id string) (credit.Package, error) {
	var row packageRow
	q := `SELECT ` + packageColumns + ` FROM credit_package WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return credit.Package{}, repo.trapNoRowsErr(err, credit.ErrPackageNotFound, "selecting package")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) QueryCosts(ctx context.Context) ([]credit.CostEntry, error) {
	var rows []costRow
	q := `SELECT ` + costColumns + ` FROM document_cost ORDER BY category, document_type`
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting costs")
	}
	costs := make([]credit.CostEntry, 0, len(rows))
	for _, r := range rows {
		costs = append(costs, r.unrow())
	}
	return costs, nil
}

func (repo *creditRepository) GetCostEntry(ctx context.Context, documentType string) (credit.CostEntry, error) {
	var row costRow
	q := `SELECT ` + costColumns + ` FROM document_cost WHERE document_type = $1`
	if err := repo.exec.GetContext(ctx, &row, q, documentType); err != nil {
		return credit.CostEntry{}, repo.trapNoRowsErr(err, credit.ErrUnknownDocumentType, "selecting cost")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) CreateTransaction(ctx context.Context, trx credit.Transaction) (credit.Transaction, error) {
	row := transactionRow{
		ID:            uuid.New().String(),
		Owner:         trx.Owner,
		PackageID:     trx.PackageID,
		Credits:       trx.Credits,
		Price:         trx.Price,
		Currency:      trx.Currency,
		PaymentMethod: trx.PaymentMethod,
		CreatedAt:     trx.CreatedAt.UTC(),
	}
	q := `
		INSERT INTO credit_transaction (` + transactionColumns + `)
		VALUES (:id, :owner, :package_id, :credits, :price, :currency, :payment_method, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, row); err != nil {
		return credit.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) CreateUsageEntry(ctx context.Context, entry credit.UsageEntry) (credit.UsageEntry, error) {
	row := usageRow{
		ID:           uuid.New().String(),
		Owner:        entry.Owner,
		DocumentType: entry.DocumentType,
		Debited:      entry.Debited,
		Outcome:      entry.Outcome,
		CreatedAt:    entry.CreatedAt.UTC(),
	}
	q := `
		INSERT INTO credit_usage (` + usageColumns + `)
		VALUES (:id, :owner, :document_type, :debited, :outcome, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, row); err != nil {
		return credit.UsageEntry{}, errors.Wrap(err, "inserting usage entry")
	}
	return row.unrow(), nil
}

func (repo *creditRepository) QueryTransactions(ctx context.Context, owner string, page core.Page) ([]credit.Transaction, error) {
	var rows []transactionRow
	q := `
		SELECT ` + transactionColumns + ` FROM credit_transaction
		WHERE owner = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3`
	if err := repo.exec.SelectContext(ctx, &rows, q, owner, page.Limit, page.Offset); err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	trxs := make([]credit.Transaction, 0, len(rows))
	for _, r := range rows {
		trxs = append(trxs, r.unrow())
	}
	return trxs, nil
}

func (repo *creditRepository) QueryUsageEntries(ctx context.Context, owner string, page core.Page) ([]credit.UsageEntry, error) {
	var rows []usageRow
	q := `
		SELECT ` + usageColumns + ` FROM credit_usage
		WHERE owner = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3`
	if err := repo.exec.SelectContext(ctx, &rows, q, owner, page.Limit, page.Offset); err != nil {
		return nil, errors.Wrap(err, "selecting usage entries")
	}
	entries := make([]credit.UsageEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.unrow())
	}
	return entries, nil
}
