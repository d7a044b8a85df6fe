package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

var (
	hundred = decimal.NewFromInt(100)
	testLog = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalance(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "balance: want %s, got %s", want, got)
}

// runAccountRepositoryContract exercises the behaviour every backend must
// share. Each subtest uses its own user ids so the store can be reused.
func runAccountRepositoryContract(t *testing.T, repo domain.AccountRepository) {
	ctx := context.Background()

	t.Run("ensure creates once", func(t *testing.T) {
		first, err := repo.EnsureAccount(ctx, "ensure-user", hundred)
		require.NoError(t, err)
		assertBalance(t, "100", first.Balance)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := repo.EnsureAccount(ctx, "ensure-user", dec("5"))
		require.NoError(t, err)
		assertBalance(t, "100", second.Balance)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	})

	t.Run("increment creates absent account from initial", func(t *testing.T) {
		account, err := repo.IncrementBalance(ctx, "increment-new", hundred, dec("25.5"))
		require.NoError(t, err)
		assertBalance(t, "125.5", account.Balance)

		account, err = repo.IncrementBalance(ctx, "increment-new", hundred, dec("0.5"))
		require.NoError(t, err)
		assertBalance(t, "126", account.Balance)
		assert.False(t, account.UpdatedAt.Before(account.CreatedAt))
	})

	t.Run("decrement only when sufficient", func(t *testing.T) {
		_, err := repo.EnsureAccount(ctx, "decrement-user", hundred)
		require.NoError(t, err)

		account, err := repo.DecrementBalanceIfSufficient(ctx, "decrement-user", dec("40"))
		require.NoError(t, err)
		assertBalance(t, "60", account.Balance)

		_, err = repo.DecrementBalanceIfSufficient(ctx, "decrement-user", dec("60.01"))
		assert.True(t, stderrors.Is(err, errors.ErrInsufficientFunds), "got %v", err)

		account, err = repo.EnsureAccount(ctx, "decrement-user", hundred)
		require.NoError(t, err)
		assertBalance(t, "60", account.Balance)

		account, err = repo.DecrementBalanceIfSufficient(ctx, "decrement-user", dec("60"))
		require.NoError(t, err)
		assert.True(t, account.Balance.IsZero())
	})

	t.Run("decrement of absent account is insufficient", func(t *testing.T) {
		_, err := repo.DecrementBalanceIfSufficient(ctx, "decrement-absent", dec("1"))
		assert.True(t, stderrors.Is(err, errors.ErrInsufficientFunds), "got %v", err)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		const workers = 20
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				_, err := repo.IncrementBalance(ctx, "concurrent-credit", hundred, dec("1.25"))
				return err
			})
		}
		require.NoError(t, g.Wait())

		account, err := repo.EnsureAccount(ctx, "concurrent-credit", hundred)
		require.NoError(t, err)
		assertBalance(t, "125", account.Balance)
	})

	t.Run("concurrent decrements never overdraw", func(t *testing.T) {
		_, err := repo.EnsureAccount(ctx, "concurrent-debit", hundred)
		require.NoError(t, err)

		const workers = 15
		results := make(chan error, workers)
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				_, err := repo.DecrementBalanceIfSufficient(ctx, "concurrent-debit", dec("10"))
				results <- err
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, stderrors.Is(err, errors.ErrInsufficientFunds), "got %v", err)
		}
		assert.Equal(t, 10, succeeded)

		account, err := repo.EnsureAccount(ctx, "concurrent-debit", hundred)
		require.NoError(t, err)
		assert.True(t, account.Balance.IsZero())
	})

	t.Run("top balances ordered descending", func(t *testing.T) {
		for i, amount := range []string{"5000", "7000", "6000"} {
			_, err := repo.IncrementBalance(ctx, fmt.Sprintf("top-%d", i), hundred, dec(amount))
			require.NoError(t, err)
		}

		top, err := repo.TopBalances(ctx, 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "top-1", top[0].UserID)
		assertBalance(t, "7100", top[0].Balance)
		assert.Equal(t, "top-2", top[1].UserID)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})

	transferer, ok := repo.(domain.AtomicTransferer)
	if !ok {
		return
	}

	t.Run("atomic transfer", func(t *testing.T) {
		from, to, err := transferer.TransferBalance(ctx, "transfer-a", "transfer-b", hundred, dec("30"))
		require.NoError(t, err)
		assertBalance(t, "70", from.Balance)
		assertBalance(t, "130", to.Balance)
	})

	t.Run("atomic transfer with insufficient funds changes nothing", func(t *testing.T) {
		_, _, err := transferer.TransferBalance(ctx, "transfer-a", "transfer-b", hundred, dec("70.01"))
		assert.True(t, stderrors.Is(err, errors.ErrInsufficientFunds), "got %v", err)

		a, err := repo.EnsureAccount(ctx, "transfer-a", hundred)
		require.NoError(t, err)
		assertBalance(t, "70", a.Balance)
		b, err := repo.EnsureAccount(ctx, "transfer-b", hundred)
		require.NoError(t, err)
		assertBalance(t, "130", b.Balance)
	})

	t.Run("opposite concurrent transfers conserve money", func(t *testing.T) {
		var g errgroup.Group
		for i := 0; i < 10; i++ {
			from, to := "swap-x", "swap-y"
			if i%2 == 1 {
				from, to = to, from
			}
			g.Go(func() error {
				_, _, err := transferer.TransferBalance(ctx, from, to, hundred, dec("3"))
				return err
			})
		}
		require.NoError(t, g.Wait())

		x, err := repo.EnsureAccount(ctx, "swap-x", hundred)
		require.NoError(t, err)
		y, err := repo.EnsureAccount(ctx, "swap-y", hundred)
		require.NoError(t, err)
		assertBalance(t, "200", x.Balance.Add(y.Balance))
	})

	t.Run("opposite first transfers between new accounts both succeed", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			x, y := fmt.Sprintf("fresh-%d-x", i), fmt.Sprintf("fresh-%d-y", i)

			var g errgroup.Group
			g.Go(func() error {
				_, _, err := transferer.TransferBalance(ctx, x, y, hundred, dec("1"))
				return err
			})
			g.Go(func() error {
				_, _, err := transferer.TransferBalance(ctx, y, x, hundred, dec("2"))
				return err
			})
			require.NoError(t, g.Wait())

			a, err := repo.EnsureAccount(ctx, x, hundred)
			require.NoError(t, err)
			assertBalance(t, "101", a.Balance)
			b, err := repo.EnsureAccount(ctx, y, hundred)
			require.NoError(t, err)
			assertBalance(t, "99", b.Balance)
		}
	})
}
