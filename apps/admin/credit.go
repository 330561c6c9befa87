package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	echoapi "github.com/trezcool/masomo-credits/apps/api/echo"
	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
)

const timeLayout = "2006-01-02 15:04:05"

func (cli *commandLine) printBalance(bal credit.Balance) {
	fmt.Fprintf(cli.writer(), "%s: %d credits (purchased %d, consumed %d)\n", bal.Owner, bal.Current, bal.Purchased, bal.Consumed)
}

func (cli *commandLine) balance(owner string) error {
	bal, err := cli.creditSvc.GetBalance(context.Background(), owner)
	if err != nil {
		return err
	}
	cli.printBalance(bal)
	return nil
}

// grant records a purchase made outside the app (eg: paid in cash at the office).
func (cli *commandLine) grant(owner string, np credit.NewPurchase) error {
	if err := np.Validate(cli.validate); err != nil {
		return err
	}
	rcpt, err := cli.creditSvc.Purchase(context.Background(), owner, np)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.writer(), "transaction %s: +%d credits (%s %s)\n",
		rcpt.Transaction.ID, rcpt.Transaction.Credits, rcpt.Transaction.Price.StringFixed(2), rcpt.Transaction.Currency)
	cli.printBalance(rcpt.Balance)
	return nil
}

func (cli *commandLine) history(owner string, usage bool, page core.Page) error {
	ctx := context.Background()
	w := tabwriter.NewWriter(cli.writer(), 0, 4, 2, ' ', 0)

	if usage {
		entries, err := cli.creditSvc.ListUsage(ctx, owner, page)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DATE\tDOCUMENT\tDEBITED\tOUTCOME")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.CreatedAt.Format(timeLayout), e.DocumentType, e.Debited, e.Outcome)
		}
		return w.Flush()
	}

	trxs, err := cli.creditSvc.ListTransactions(ctx, owner, page)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "DATE\tPACKAGE\tCREDITS\tPRICE\tMETHOD")
	for _, trx := range trxs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s %s\t%s\n",
			trx.CreatedAt.Format(timeLayout), trx.PackageID, trx.Credits, trx.Price.StringFixed(2), trx.Currency, trx.PaymentMethod)
	}
	return w.Flush()
}

func (cli *commandLine) token(owner, uname, email string) error {
	owner = core.CleanString(owner)
	if owner == "" {
		return credit.ErrInvalidOwner
	}
	ss, err := echoapi.GenerateToken(cli.conf, echoapi.NewOwnerClaims(cli.conf, owner, uname, email))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.writer(), ss)
	return nil
}
