package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
)

// RunRepositoryTests checks a credit.Repository implementation against the ledger rules.
// newRepo must return a repository over an empty ledger holding the default catalog.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) credit.Repository) {
	ctx := context.Background()
	at := time.Date(2021, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("balance starts at zero", func(t *testing.T) {
		repo := newRepo(t)
		bal, err := repo.GetBalance(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", bal.Owner)
		assert.Zero(t, bal.Current)
		assert.Zero(t, bal.Purchased)
		assert.Zero(t, bal.Consumed)
	})

	t.Run("credit then debit", func(t *testing.T) {
		repo := newRepo(t)
		bal, err := repo.Credit(ctx, "owner-1", 50, at)
		require.NoError(t, err)
		assert.Equal(t, int64(50), bal.Current)
		assert.Equal(t, int64(50), bal.Purchased)

		bal, err = repo.Debit(ctx, "owner-1", 2, at.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, credit.Balance{Owner: "owner-1", Current: 48, Purchased: 50, Consumed: 2, UpdatedAt: at.Add(time.Minute)}, bal)
	})

	t.Run("debit never overdraws", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Debit(ctx, "owner-1", 1, at)
		assert.Equal(t, credit.ErrInsufficientFunds, errors.Cause(err))

		_, err = repo.Credit(ctx, "owner-1", 3, at)
		require.NoError(t, err)
		_, err = repo.Debit(ctx, "owner-1", 4, at)
		assert.Equal(t, credit.ErrInsufficientFunds, errors.Cause(err))

		bal, err := repo.GetBalance(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), bal.Current)
		assert.Zero(t, bal.Consumed)
	})

	t.Run("non-positive amounts are refused", func(t *testing.T) {
		repo := newRepo(t)
		for _, amount := range []int64{0, -5} {
			_, err := repo.Credit(ctx, "owner-1", amount, at)
			assert.Equal(t, credit.ErrInvalidAmount, errors.Cause(err))
			_, err = repo.Debit(ctx, "owner-1", amount, at)
			assert.Equal(t, credit.ErrInvalidAmount, errors.Cause(err))
		}
	})

	t.Run("failed unit of work leaves no trace", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Credit(ctx, "owner-1", 10, at)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = repo.WithinTx(ctx, func(tx credit.Repository) error {
			if _, err := tx.Debit(ctx, "owner-1", 4, at); err != nil {
				return err
			}
			if _, err := tx.CreateUsageEntry(ctx, credit.UsageEntry{
				Owner: "owner-1", DocumentType: "transcript", Debited: 4, Outcome: credit.OutcomeSuccess, CreatedAt: at,
			}); err != nil {
				return err
			}
			return boom
		})
		assert.Equal(t, boom, errors.Cause(err))

		bal, err := repo.GetBalance(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), bal.Current)
		entries, err := repo.QueryUsageEntries(ctx, "owner-1", core.Page{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("concurrent debits are serialized", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Credit(ctx, "owner-1", 50, at)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.WithinTx(ctx, func(tx credit.Repository) error {
					_, err := tx.Debit(ctx, "owner-1", 30, at)
					return err
				})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		bal, err := repo.GetBalance(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(20), bal.Current)
		assert.Equal(t, int64(30), bal.Consumed)
	})

	t.Run("catalog", func(t *testing.T) {
		repo := newRepo(t)
		pkgs, err := repo.QueryActivePackages(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, pkgs)
		for i, p := range pkgs {
			assert.True(t, p.IsActive)
			if i > 0 {
				assert.True(t, pkgs[i-1].Price.LessThanOrEqual(p.Price))
			}
		}

		pkg, err := repo.GetPackage(ctx, "legacy_25")
		require.NoError(t, err)
		assert.False(t, pkg.IsActive)
		_, err = repo.GetPackage(ctx, "platinum")
		assert.Equal(t, credit.ErrPackageNotFound, errors.Cause(err))

		cost, err := repo.GetCostEntry(ctx, "fee_receipt")
		require.NoError(t, err)
		assert.Equal(t, int64(2), cost.Cost)
		_, err = repo.GetCostEntry(ctx, "diploma")
		assert.Equal(t, credit.ErrUnknownDocumentType, errors.Cause(err))

		costs, err := repo.QueryCosts(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, costs)
	})

	t.Run("history is most recent first", func(t *testing.T) {
		repo := newRepo(t)
		pkg, err := repo.GetPackage(ctx, "basic")
		require.NoError(t, err)

		var created []credit.Transaction
		for i := 0; i < 3; i++ {
			trx, err := repo.CreateTransaction(ctx, credit.Transaction{
				Owner:         "owner-1",
				PackageID:     pkg.ID,
				Credits:       pkg.Credits,
				Price:         pkg.Price,
				Currency:      pkg.Currency,
				PaymentMethod: credit.PaymentCard,
				CreatedAt:     at.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
			assert.NotEmpty(t, trx.ID)
			created = append(created, trx)
		}
		_, err = repo.CreateTransaction(ctx, credit.Transaction{
			Owner: "owner-2", PackageID: pkg.ID, Credits: pkg.Credits, Price: pkg.Price, Currency: pkg.Currency,
			PaymentMethod: credit.PaymentCash, CreatedAt: at,
		})
		require.NoError(t, err)

		trxs, err := repo.QueryTransactions(ctx, "owner-1", core.Page{Limit: 2})
		require.NoError(t, err)
		require.Len(t, trxs, 2)
		assert.Equal(t, created[2].ID, trxs[0].ID)
		assert.Equal(t, created[1].ID, trxs[1].ID)
		assert.True(t, pkg.Price.Equal(trxs[0].Price))

		trxs, err = repo.QueryTransactions(ctx, "owner-1", core.Page{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, trxs, 1)
		assert.Equal(t, created[0].ID, trxs[0].ID)
	})
}
