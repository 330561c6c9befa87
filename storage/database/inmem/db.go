package inmemdb

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-credits/core/credit"
)

type (
	DB struct {
		credit *creditTables
	}

	creditTables struct {
		sync.Mutex
		balances     map[string]credit.Balance
		packages     map[string]credit.Package
		costs        map[string]credit.CostEntry
		transactions []credit.Transaction
		usage        []credit.UsageEntry
	}
)

// Open returns an empty in-memory database.
func Open() *DB {
	return &DB{
		credit: &creditTables{
			balances: make(map[string]credit.Balance),
			packages: make(map[string]credit.Package),
			costs:    make(map[string]credit.CostEntry),
		},
	}
}

// OpenSeeded returns an in-memory database holding the default catalog.
func OpenSeeded() *DB {
	db := Open()
	db.Seed(DefaultPackages(), DefaultCosts())
	return db
}

// Seed adds (or replaces) packages and cost entries.
func (db *DB) Seed(pkgs []credit.Package, costs []credit.CostEntry) {
	db.credit.Lock()
	defer db.credit.Unlock()

	for _, p := range pkgs {
		db.credit.packages[p.ID] = p
	}
	for _, c := range costs {
		db.credit.costs[c.DocumentType] = c
	}
}

// DefaultPackages mirrors the catalog seeded by the SQL migrations.
func DefaultPackages() []credit.Package {
	return []credit.Package{
		{ID: "starter", Name: "Starter", Description: "For trying things out", Price: decimal.Zero, Currency: "USD", Credits: 10, IsActive: true},
		{ID: "basic", Name: "Basic", Price: decimal.NewFromInt(5), Currency: "USD", Credits: 50, IsActive: true},
		{ID: "standard", Name: "Standard", Description: "Best value for a single class", Price: decimal.NewFromInt(9), Currency: "USD", Credits: 100, IsActive: true},
		{ID: "school", Name: "School", Description: "For a whole term of documents", Price: decimal.NewFromInt(40), Currency: "USD", Credits: 500, IsActive: true},
		{ID: "enterprise", Name: "Enterprise", Description: "For school networks", Price: decimal.NewFromInt(75), Currency: "USD", Credits: 1000, IsActive: true},
		{ID: "legacy_25", Name: "Legacy 25", Description: "No longer sold", Price: decimal.NewFromInt(3), Currency: "USD", Credits: 25, IsActive: false},
	}
}

// DefaultCosts mirrors the cost table seeded by the SQL migrations.
func DefaultCosts() []credit.CostEntry {
	return []credit.CostEntry{
		{DocumentType: "fee_receipt", Cost: 2, Category: credit.CategoryFinance},
		{DocumentType: "fee_statement", Cost: 3, Category: credit.CategoryFinance},
		{DocumentType: "id_card", Cost: 2, Category: credit.CategoryIdentity},
		{DocumentType: "transcript", Cost: 4, Category: credit.CategoryAcademic},
		{DocumentType: "report_card", Cost: 3, Category: credit.CategoryAcademic},
		{DocumentType: "certificate", Cost: 5, Category: credit.CategoryAcademic},
		{DocumentType: "admission_letter", Cost: 3, Category: credit.CategoryAdministrative},
		{DocumentType: "class_list", Cost: 0, Category: credit.CategoryAdministrative},
	}
}
