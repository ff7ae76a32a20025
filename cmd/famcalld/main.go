package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/famcall/internal/account"
	"github.com/matheus3301/famcall/internal/config"
	"github.com/matheus3301/famcall/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	flag.Parse()

	accountName := account.Resolve(*accountFlag)
	if err := account.ValidateName(accountName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Read(account.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config %s:\n%v\n", account.ConfigPath(), err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{AccountName: accountName, Config: cfg, Capture: newCapturer}),
	)

	app.Run()
}
