package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/masomo-credits/apps/api/echo"
	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
	emailsvc "github.com/trezcool/masomo-credits/services/email"
	inmemdb "github.com/trezcool/masomo-credits/storage/database/inmem"
	testutil "github.com/trezcool/masomo-credits/tests"
)

var (
	conf    = testutil.NewConfig()
	mailSvc *emailsvc.ConsoleServiceMock
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(&testutil.Logger{})
	os.Exit(m.Run())
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()

	logger := &testutil.Logger{}
	mailSvc = emailsvc.NewConsoleServiceMock(logger, conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	credit.InitValidators(validate, translator)

	out := new(bytes.Buffer)
	return &commandLine{
		conf:      conf,
		migrator:  newMigrator(nil),
		creditSvc: credit.NewService(inmemdb.NewCreditRepository(inmemdb.OpenSeeded()), mailSvc, logger, conf),
		validate:  validate,
		out:       out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantField  string   // expects a validation error on this field
	wantOut    []string // substrings of the output
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()

	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case err == nil:
				if tt.wantErr != nil || tt.wantErrStr != "" || tt.wantField != "" {
					t.Fatalf("cli.run() error = nil, wantErr %v%s%s", tt.wantErr, tt.wantErrStr, tt.wantField)
				}
			case tt.wantErr != nil:
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantField != "":
				verrs, ok := err.(validator.ValidationErrors)
				if !ok || len(verrs) != 1 || verrs[0].Field() != tt.wantField {
					t.Errorf("cli.run() error = %v, want a validation error on %s", err, tt.wantField)
				}
			case tt.wantErrStr != "":
				if err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
				}
			default:
				t.Fatalf("cli.run() unexpected error = %v", err)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("cli.run() output = %q, want it to contain %q", out.String(), want)
				}
			}
		})
	}
}

func Test_commandLine_help(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "balance: no owner", args: []string{"balance"}, wantErr: errHelp},
		{name: "grant: no package", args: []string{"grant", "-owner", "school-1"}, wantErr: errHelp},
		{name: "history: no owner", args: []string{"history", "-usage"}, wantErr: errHelp},
		{name: "token: no owner", args: []string{"token"}, wantErr: errHelp},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	var ran []string
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, strings.Join(append([]string{command}, args...), " "))
		return nil
	}
	defer func(orig func(*sql.DB, string, ...string) error) { migrateFunc = orig }(migrateFunc)

	runCLITests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_refunds", "sql"}},
	})

	want := []string{"up", "up-to 2", "down-to 1", "status", "create add_refunds sql"}
	if strings.Join(ran, ",") != strings.Join(want, ",") {
		t.Errorf("migrations ran = %v, want %v", ran, want)
	}
}

func Test_commandLine_grantAndBalance(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "zero balance", args: []string{"balance", "-owner", "school-1"}, wantOut: []string{"school-1: 0 credits (purchased 0, consumed 0)"}},
		{name: "blank owner", args: []string{"balance", "-owner", "  "}, wantErr: credit.ErrInvalidOwner},
		{name: "unknown package", args: []string{"grant", "-owner", "school-1", "-package", "platinum"}, wantErr: credit.ErrPackageNotFound},
		{name: "inactive package", args: []string{"grant", "-owner", "school-1", "-package", "legacy_25"}, wantErr: credit.ErrPackageNotFound},
		{
			name:      "invalid payment method",
			args:      []string{"grant", "-owner", "school-1", "-package", "basic", "-method", "barter"},
			wantField: "payment_method",
		},
		{
			name:    "grant",
			args:    []string{"grant", "-owner", "school-1", "-package", "basic"},
			wantOut: []string{"+50 credits (5.00 USD)", "school-1: 50 credits (purchased 50, consumed 0)"},
		},
		{
			name:    "grant with receipt",
			args:    []string{"grant", "-owner", "school-1", "-package", "standard", "-method", "mobile_money", "-email", "bursar@school.test"},
			wantOut: []string{"+100 credits", "school-1: 150 credits (purchased 150, consumed 0)"},
		},
		{name: "balance", args: []string{"balance", "-owner", "school-1"}, wantOut: []string{"school-1: 150 credits"}},
	})

	if sent := mailSvc.SentMessages(); len(sent) != 1 || sent[0].To[0].Address != "bursar@school.test" {
		t.Errorf("receipts sent = %v, want one to bursar@school.test", sent)
	}
}

func Test_commandLine_history(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	for _, pkgID := range []string{"basic", "school"} {
		if _, err := cli.creditSvc.Purchase(ctx, "school-1", credit.NewPurchase{PackageID: pkgID, PaymentMethod: credit.PaymentCard}); err != nil {
			t.Fatalf("Purchase() failed: %v", err)
		}
	}
	if _, err := cli.creditSvc.Consume(ctx, "school-1", credit.NewConsumption{DocumentType: "transcript"}); err != nil {
		t.Fatalf("Consume() failed: %v", err)
	}

	runCLITests(t, cli, out, []cliTest{
		{name: "transactions", args: []string{"history", "-owner", "school-1"}, wantOut: []string{"PACKAGE", "basic", "school", "40.00 USD", "card"}},
		{name: "usage", args: []string{"history", "-owner", "school-1", "-usage"}, wantOut: []string{"DOCUMENT", "transcript", "success"}},
		{name: "bad flag", args: []string{"history", "-owner", "school-1", "-limit", "lol"}, wantErrStr: `invalid value "lol" for flag -limit: parse error`},
	})

	out.Reset()
	if err := cli.run([]string{"admin", "history", "-owner", "school-1", "-limit", "1"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if strings.Contains(out.String(), "basic") || !strings.Contains(out.String(), "school") {
		t.Errorf("cli.run() output = %q, want only the latest purchase", out.String())
	}
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "blank owner", args: []string{"token", "-owner", " "}, wantErr: credit.ErrInvalidOwner},
		{name: "token", args: []string{"token", "-owner", "school-1", "-username", "bursar"}},
	})

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(conf.SecretKey), nil
	})
	if err != nil {
		t.Fatalf("ParseWithClaims() failed: %v", err)
	}
	if claims.Subject != "school-1" || claims.Username != "bursar" {
		t.Errorf("token claims = %+v, want subject school-1 & username bursar", claims)
	}
}
