package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
)

type creditRepository struct {
	db   *creditTables
	inTx bool // the tables lock is already held
}

var _ credit.Repository = (*creditRepository)(nil) // interface compliance check

func NewCreditRepository(db *DB) credit.Repository {
	return &creditRepository{db: db.credit}
}

func (repo *creditRepository) lock() func() {
	if repo.inTx {
		return func() {}
	}
	repo.db.Lock()
	return repo.db.Unlock
}

type snapshot struct {
	balances map[string]credit.Balance
	trxLen   int
	usageLen int
}

func (repo *creditRepository) snapshot() snapshot {
	balances := make(map[string]credit.Balance, len(repo.db.balances))
	for k, v := range repo.db.balances {
		balances[k] = v
	}
	return snapshot{balances: balances, trxLen: len(repo.db.transactions), usageLen: len(repo.db.usage)}
}

func (repo *creditRepository) restore(s snapshot) {
	repo.db.balances = s.balances
	repo.db.transactions = repo.db.transactions[:s.trxLen]
	repo.db.usage = repo.db.usage[:s.usageLen]
}

// WithinTx holds the tables lock for the whole of fn and restores the ledger if fn fails.
func (repo *creditRepository) WithinTx(_ context.Context, fn func(repo credit.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}

	repo.db.Lock()
	defer repo.db.Unlock()

	s := repo.snapshot()
	if err := fn(&creditRepository{db: repo.db, inTx: true}); err != nil {
		repo.restore(s)
		return err
	}
	return nil
}

func (repo *creditRepository) getOrInitBalance(owner string, at time.Time) credit.Balance {
	bal, ok := repo.db.balances[owner]
	if !ok {
		bal = credit.Balance{Owner: owner, UpdatedAt: at.UTC()}
		repo.db.balances[owner] = bal
	}
	return bal
}

func (repo *creditRepository) GetBalance(_ context.Context, owner string) (credit.Balance, error) {
	defer repo.lock()()
	return repo.getOrInitBalance(owner, credit.NowFunc()), nil
}

func (repo *creditRepository) Credit(_ context.Context, owner string, amount int64, at time.Time) (credit.Balance, error) {
	if amount <= 0 {
		return credit.Balance{}, credit.ErrInvalidAmount
	}
	defer repo.lock()()

	bal := repo.getOrInitBalance(owner, at)
	bal.Current += amount
	bal.Purchased += amount
	bal.UpdatedAt = at.UTC()
	repo.db.balances[owner] = bal
	return bal, nil
}

func (repo *creditRepository) Debit(_ context.Context, owner string, amount int64, at time.Time) (credit.Balance, error) {
	if amount <= 0 {
		return credit.Balance{}, credit.ErrInvalidAmount
	}
	defer repo.lock()()

	bal, ok := repo.db.balances[owner]
	if !ok || bal.Current < amount {
		return credit.Balance{}, credit.ErrInsufficientFunds
	}
	bal.Current -= amount
	bal.Consumed += amount
	bal.UpdatedAt = at.UTC()
	repo.db.balances[owner] = bal
	return bal, nil
}

func (repo *creditRepository) QueryActivePackages(_ context.Context) ([]credit.Package, error) {
	defer repo.lock()()

	pkgs := make([]credit.Package, 0, len(repo.db.packages))
	for _, p := range repo.db.packages {
		if p.IsActive {
			pkgs = append(pkgs, p)
		}
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if c := pkgs[i].Price.Cmp(pkgs[j].Price); c != 0 {
			return c < 0
		}
		if pkgs[i].Credits != pkgs[j].Credits {
			return pkgs[i].Credits < pkgs[j].Credits
		}
		return pkgs[i].ID < pkgs[j].ID
	})
	return pkgs, nil
}

func (repo *creditRepository) GetPackage(_ context.Context, id string) (credit.Package, error) {
	defer repo.lock()()

	if p, ok := repo.db.packages[id]; ok {
		return p, nil
	}
	return credit.Package{}, credit.ErrPackageNotFound
}

func (repo *creditRepository) QueryCosts(_ context.Context) ([]credit.CostEntry, error) {
	defer repo.lock()()

	costs := make([]credit.CostEntry, 0, len(repo.db.costs))
	for _, c := range repo.db.costs {
		costs = append(costs, c)
	}
	sort.Slice(costs, func(i, j int) bool {
		if costs[i].Category != costs[j].Category {
			return costs[i].Category < costs[j].Category
		}
		return costs[i].DocumentType < costs[j].DocumentType
	})
	return costs, nil
}

func (repo *creditRepository) GetCostEntry(_ context.Context, documentType string) (credit.CostEntry, error) {
	defer repo.lock()()

	if c, ok := repo.db.costs[documentType]; ok {
		return c, nil
	}
	return credit.CostEntry{}, credit.ErrUnknownDocumentType
}

func (repo *creditRepository) CreateTransaction(_ context.Context, trx credit.Transaction) (credit.Transaction, error) {
	defer repo.lock()()

	trx.ID = uuid.New().String()
	trx.CreatedAt = trx.CreatedAt.UTC()
	repo.db.transactions = append(repo.db.transactions, trx)
	return trx, nil
}

func (repo *creditRepository) CreateUsageEntry(_ context.Context, entry credit.UsageEntry) (credit.UsageEntry, error) {
	defer repo.lock()()

	entry.ID = uuid.New().String()
	entry.CreatedAt = entry.CreatedAt.UTC()
	repo.db.usage = append(repo.db.usage, entry)
	return entry, nil
}

// window returns the [start, end) bounds of `page` over `n` records.
func window(n int, page core.Page) (start, end int) {
	start = page.Offset
	if start > n {
		start = n
	}
	end = n
	if page.Limit > 0 && start+page.Limit < n {
		end = start + page.Limit
	}
	return start, end
}

func (repo *creditRepository) QueryTransactions(_ context.Context, owner string, page core.Page) ([]credit.Transaction, error) {
	defer repo.lock()()

	// records are appended in creation order: walk backwards for most recent first
	owned := make([]credit.Transaction, 0)
	for i := len(repo.db.transactions) - 1; i >= 0; i-- {
		if trx := repo.db.transactions[i]; trx.Owner == owner {
			owned = append(owned, trx)
		}
	}
	start, end := window(len(owned), page)
	return owned[start:end], nil
}

func (repo *creditRepository) QueryUsageEntries(_ context.Context, owner string, page core.Page) ([]credit.UsageEntry, error) {
	defer repo.lock()()

	owned := make([]credit.UsageEntry, 0)
	for i := len(repo.db.usage) - 1; i >= 0; i-- {
		if entry := repo.db.usage[i]; entry.Owner == owner {
			owned = append(owned, entry)
		}
	}
	start, end := window(len(owned), page)
	return owned[start:end], nil
}
