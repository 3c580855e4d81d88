// Command ledgerctl is a small flag-parsed CLI over pkg/ledger, used for
// smoke-testing a ledger and for local development against an in-process
// mock transport.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/qldbsession"

	"github.com/ledgerql/driver-go/pkg/ledger"
	"github.com/ledgerql/driver-go/pkg/ledgerval"
	"github.com/ledgerql/driver-go/transport/awsqldb"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("ledgerctl", flag.ExitOnError)
	ledgerName := fs.String("ledger", "", "ledger name to target")
	region := fs.String("region", "us-east-1", "AWS region of the ledger")
	useMock := fs.Bool("mock", false, "use an in-process mock transport instead of a real Ledger")
	verbosity := fs.Int("v", int(ledger.LogLevelInfo), "log verbosity (0=none .. 4=debug)")

	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("expected a subcommand: tables, exec")
	}
	cmdName := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	if *ledgerName == "" && !*useMock {
		return fmt.Errorf("-ledger is required unless -mock is set")
	}

	transport, err := buildTransport(*useMock, *region)
	if err != nil {
		return err
	}

	driver, err := ledger.New(
		ledger.WithLedgerName(orDefault(*ledgerName, "mock-ledger")),
		ledger.WithTransport(transport),
		ledger.WithLoggerVerbosity(ledger.LogLevel(*verbosity)),
		ledger.WithTableNameDecoder(ledgerval.DecodeTableName),
	)
	if err != nil {
		return err
	}
	defer driver.Close(context.Background())

	switch cmdName {
	case "tables":
		return runTables(driver)
	case "exec":
		return runExec(driver, fs.Args())
	default:
		return fmt.Errorf("unknown subcommand %q", cmdName)
	}
}

func runTables(driver *ledger.Driver) error {
	names, err := driver.ListTableNames(context.Background())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runExec(driver *ledger.Driver, statements []string) error {
	if len(statements) == 0 {
		return fmt.Errorf("exec requires at least one PartiQL statement argument")
	}
	_, err := driver.Execute(context.Background(), func(txn ledger.TxnView) (any, error) {
		for _, stmt := range statements {
			stream, err := txn.Execute(context.Background(), stmt)
			if err != nil {
				return nil, err
			}
			buffered, err := ledger.Drain(stream)
			if err != nil {
				return nil, err
			}
			for _, v := range buffered.Values {
				fmt.Println(ledgerval.FromBytes(v.Bytes()))
			}
		}
		return nil, nil
	})
	return err
}

func buildTransport(useMock bool, region string) (ledger.Transport, error) {
	if useMock {
		return newDemoTransport(), nil
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region), MaxRetries: aws.Int(0)})
	if err != nil {
		return nil, fmt.Errorf("ledgerctl: building AWS session: %w", err)
	}
	client := qldbsession.New(sess)
	return awsqldb.New(client), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
