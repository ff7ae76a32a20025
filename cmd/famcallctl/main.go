package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/famcall/internal/account"
	"github.com/matheus3301/famcall/internal/tui/client"
	"github.com/spf13/cobra"
)

const rpcTimeout = 10 * time.Second

type options struct {
	account string
	json    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "famcallctl",
		Short:         "Control the famcall daemon of an account",
		Example:       "famcallctl call u2 --video",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.account, "account", "", "account name (overrides config default)")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "output in JSON format")

	cmd.AddCommand(
		newStatusCommand(opts),
		newCallCommand(opts),
		newAcceptCommand(opts),
		newEndCommand(opts),
		newFlipCommand(opts),
		newOpenCommand(opts),
		newHistoryCommand(opts),
		newContactsCommand(opts),
		newThreadCommand(opts),
		newLinkCommand(),
		newListenCommand(opts),
		newTokenCommand(),
		newInitCommand(),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// accountName resolves and validates the --account flag.
func (o *options) accountName() (string, error) {
	name := account.Resolve(o.account)
	if err := account.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// withClient connects to the account's daemon and runs fn with a bounded
// context.
func (o *options) withClient(fn func(ctx context.Context, c *client.Client) error) error {
	name, err := o.accountName()
	if err != nil {
		return err
	}
	c, err := client.New(account.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for account %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
