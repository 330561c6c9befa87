package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf      *core.Config
	migrator  migrator
	creditSvc credit.Service
	validate  *validator.Validate
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                                  - run goose migrations (up, down, status, ...)")
	fmt.Println("  balance -owner OWNER                                    - print an owner's credit balance")
	fmt.Println("  grant -owner OWNER -package ID [-method M] [-email E]   - purchase a credit package on an owner's behalf")
	fmt.Println("  history -owner OWNER [-usage] [-limit N] [-offset N]    - list an owner's purchases (or document usage)")
	fmt.Println("  token -owner OWNER [-username U] [-email E]             - mint an API token acting for an owner")
}

func (cli *commandLine) writer() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	balanceCmd := flag.NewFlagSet("balance", flag.ContinueOnError)
	balanceOwner := balanceCmd.String("owner", "", "The owner (school/account) identifier.")

	grantCmd := flag.NewFlagSet("grant", flag.ContinueOnError)
	grantOwner := grantCmd.String("owner", "", "The owner (school/account) identifier.")
	grantPackage := grantCmd.String("package", "", "The credit package to purchase.")
	grantMethod := grantCmd.String("method", credit.PaymentCash, "The payment method.")
	grantEmail := grantCmd.String("email", "", "Where to send the purchase receipt (optional).")

	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	historyOwner := historyCmd.String("owner", "", "The owner (school/account) identifier.")
	historyUsage := historyCmd.Bool("usage", false, "List document usage instead of purchases.")
	historyLimit := historyCmd.Int("limit", 0, "Max number of records.")
	historyOffset := historyCmd.Int("offset", 0, "Number of records to skip.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenOwner := tokenCmd.String("owner", "", "The owner (school/account) identifier.")
	tokenUname := tokenCmd.String("username", "", "The acting user's username (optional).")
	tokenEmail := tokenCmd.String("email", "", "The acting user's email (optional).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "balance":
		if err := balanceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *balanceOwner == "" {
			balanceCmd.Usage()
			return errHelp
		}
		return cli.balance(*balanceOwner)
	case "grant":
		if err := grantCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *grantOwner == "" || *grantPackage == "" {
			grantCmd.Usage()
			return errHelp
		}
		return cli.grant(*grantOwner, credit.NewPurchase{
			PackageID:     *grantPackage,
			PaymentMethod: *grantMethod,
			ReceiptEmail:  *grantEmail,
		})
	case "history":
		if err := historyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *historyOwner == "" {
			historyCmd.Usage()
			return errHelp
		}
		return cli.history(*historyOwner, *historyUsage, core.Page{Limit: *historyLimit, Offset: *historyOffset})
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenOwner == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenOwner, *tokenUname, *tokenEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}
