package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/famcall/internal/account"
	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/config"
	"github.com/matheus3301/famcall/internal/deeplink"
	"github.com/matheus3301/famcall/internal/lock"
	"github.com/matheus3301/famcall/internal/push"
	"github.com/matheus3301/famcall/internal/tui/client"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func printCall(info *api.CallInfo, jsonOut bool) {
	if jsonOut {
		outputJSON(info)
		return
	}
	fmt.Printf("Account: %s (%s)\n", info.Account, info.UserID)
	fmt.Printf("Call:    %s\n", info.State)
	if info.Peer != nil {
		fmt.Printf("Peer:    %s\n", info.Peer.DisplayName())
		fmt.Printf("Kind:    %s\n", info.Kind)
		fmt.Printf("Session: %s\n", info.SessionID)
	}
	if info.View.Status != "" {
		fmt.Printf("Status:  %s\n", info.View.Status)
	}
	if info.Media.Joined {
		fmt.Printf("Media:   joined %s, %d remote\n", info.Channel, len(info.Media.Remote))
	}
	fmt.Printf("Uptime:  %dms\n", info.UptimeMs)
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current call",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := opts.withClient(func(ctx context.Context, c *client.Client) error {
				info, err := c.GetCall(ctx)
				if err != nil {
					return err
				}
				printCall(info, opts.json)
				return nil
			})
			if grpcstatus.Code(err) != codes.Unavailable {
				return err
			}
			name, nameErr := opts.accountName()
			if nameErr != nil {
				return nameErr
			}
			return daemonDown(name, err)
		},
	}
}

// daemonDown explains an unreachable daemon from the account lock.
func daemonDown(name string, cause error) error {
	owner, held, err := lock.Inspect(account.Dir(name))
	if err != nil {
		return fmt.Errorf("%w (%v)", cause, err)
	}
	if !held {
		return fmt.Errorf("famcalld is not running for account %q", name)
	}
	return fmt.Errorf("famcalld PID %d holds account %q since %s but %s is not answering: %w",
		owner.PID, name, owner.Since.Local().Format(time.DateTime), owner.Socket, cause)
}

func newCallCommand(opts *options) *cobra.Command {
	var video bool
	cmd := &cobra.Command{
		Use:     "call <user-id>",
		Aliases: []string{"c"},
		Short:   "Ring another user",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			kind := call.Audio
			if video {
				kind = call.Video
			}
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				info, err := c.StartCall(ctx, args[0], kind)
				if err != nil {
					return err
				}
				printCall(info, opts.json)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&video, "video", false, "start a video call")
	return cmd
}

func newAcceptCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "accept",
		Short: "Answer the ringing call",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				info, err := c.AcceptCall(ctx)
				if err != nil {
					return err
				}
				printCall(info, opts.json)
				return nil
			})
		},
	}
}

func newEndCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "end",
		Aliases: []string{"hangup", "decline"},
		Short:   "Hang up, cancel or decline the current call",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				info, err := c.EndCall(ctx)
				if err != nil {
					return err
				}
				printCall(info, opts.json)
				return nil
			})
		},
	}
}

func newFlipCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flip",
		Short: "Switch to the next camera",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				resp, err := c.FlipCamera(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					outputJSON(resp)
					return nil
				}
				if !resp.Switched {
					fmt.Println("No other camera.")
					return nil
				}
				fmt.Printf("Camera: %s (%s)\n", resp.Label, resp.DeviceID)
				return nil
			})
		},
	}
}

func newOpenCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "open <link>",
		Short: "Open a famcall:// accept link",
		Long: "Open a famcall:// accept link. When the daemon is not running the link\n" +
			"is kept and rings as soon as famcalld starts.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := deeplink.Parse(args[0])
			if err != nil {
				return err
			}
			err = opts.withClient(func(ctx context.Context, c *client.Client) error {
				info, err := c.OpenLink(ctx, args[0])
				if err != nil {
					return err
				}
				printCall(info, opts.json)
				return nil
			})
			if grpcstatus.Code(err) != codes.Unavailable {
				return err
			}

			name, nameErr := opts.accountName()
			if nameErr != nil {
				return nameErr
			}
			if err := account.EnsureDir(name); err != nil {
				return err
			}
			if err := deeplink.NewPending(account.PendingLinkPath(name)).Save(id); err != nil {
				return err
			}
			fmt.Printf("Daemon not running; call %s will ring when famcalld starts.\n", id)
			return nil
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent calls",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				self, err := c.GetCall(ctx)
				if err != nil {
					return err
				}
				resp, err := c.CallHistory(ctx, limit)
				if err != nil {
					return err
				}
				if opts.json {
					outputJSON(resp)
					return nil
				}
				if len(resp.Calls) == 0 {
					fmt.Println("No calls yet.")
					return nil
				}
				for _, m := range resp.Calls {
					peer, dir := m.SenderID, "in "
					if m.SenderID == self.UserID {
						peer, dir = m.ReceiverID, "out"
					}
					length := call.FormatDuration(time.Duration(m.Duration) * time.Second)
					fmt.Printf("%s  %s  %-12s %-20s %s\n",
						time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04"), dir, m.Type, peer, length)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of calls to show")
	return cmd
}

func newContactsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List known users",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				resp, err := c.ListContacts(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					outputJSON(resp)
					return nil
				}
				for _, p := range resp.Contacts {
					fmt.Printf("%-20s %-20s %s\n", p.ID, p.DisplayName(), presenceLabel(p))
				}
				return nil
			})
		},
	}
}

func newThreadCommand(opts *options) *cobra.Command {
	var (
		limit  int
		before int64
	)
	cmd := &cobra.Command{
		Use:   "thread <user-id>",
		Short: "Show the chat thread with a user, call receipts included",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return opts.withClient(func(ctx context.Context, c *client.Client) error {
				resp, err := c.ListThread(ctx, args[0], before, limit)
				if err != nil {
					return err
				}
				if opts.json {
					outputJSON(resp)
					return nil
				}
				// Oldest first reads like a conversation.
				for i := len(resp.Messages) - 1; i >= 0; i-- {
					m := resp.Messages[i]
					body := m.Content
					if m.Type.IsCall() {
						body = fmt.Sprintf("[%s] %s", m.Type, m.Content)
						if m.Duration > 0 {
							body += " " + call.FormatDuration(time.Duration(m.Duration)*time.Second)
						}
					}
					fmt.Printf("%s  %-12s %s\n", time.UnixMilli(m.Timestamp).Format("01/02 15:04"), m.SenderID, body)
				}
				if n := len(resp.Messages); n == limit {
					fmt.Fprintf(os.Stderr, "more: --before %d\n", resp.Messages[n-1].Timestamp)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of messages to show")
	cmd.Flags().Int64Var(&before, "before", 0, "show messages older than this millisecond timestamp")
	return cmd
}

func newLinkCommand() *cobra.Command {
	var noQR bool
	cmd := &cobra.Command{
		Use:   "link <session-id>",
		Short: "Print the accept link of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			link := deeplink.Format(args[0])
			fmt.Println(link)
			if noQR {
				return nil
			}
			qr, err := deeplink.QR(link)
			if err != nil {
				return err
			}
			fmt.Print(qr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "print only the link")
	return cmd
}

func newListenCommand(opts *options) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print incoming call notifications from the push hub",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Read(account.ConfigPath())
			if err != nil {
				return err
			}
			if cfg.Push.HubURL == "" || cfg.Push.Token == "" {
				return errors.New("push.hub_url and push.token must be set")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "listening on %s\n", cfg.Push.HubURL)
			err = push.Listen(ctx, cfg.Push.HubURL, cfg.Push.Token, func(n push.Notification) {
				if opts.json {
					outputJSON(n)
				} else {
					fmt.Printf("%s: incoming %s call from %s\n%s\n",
						time.Now().Format("15:04:05"), n.Kind, n.CallerName, n.Link)
					if qr, err := deeplink.QR(n.Link); err == nil {
						fmt.Print(qr)
					}
				}
				if open {
					openErr := opts.withClient(func(ctx context.Context, c *client.Client) error {
						_, err := c.OpenLink(ctx, n.Link)
						return err
					})
					if openErr != nil {
						fmt.Fprintf(os.Stderr, "open %s: %v\n", n.DocID, openErr)
					}
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "hand each notification to the daemon so it rings")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a push hub token (needs push.secret)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Read(account.ConfigPath())
			if err != nil {
				return err
			}
			tokens, err := push.NewTokens(cfg.Push.Secret, ttl)
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default one year)")
	return cmd
}

func newInitCommand() *cobra.Command {
	var (
		userID string
		name   string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := account.ConfigPath()
			if _, err := config.Load(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			cfg := config.Default()
			cfg.DefaultAccount = account.DefaultName
			cfg.Identity = config.Identity{UserID: userID, Name: name}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "your user id")
	cmd.Flags().StringVar(&name, "name", "", "your display name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func presenceLabel(c api.Contact) string {
	switch {
	case !c.PresenceKnown:
		return "-"
	case c.Online:
		return "online"
	case c.LastSeen > 0:
		return "last seen " + time.UnixMilli(c.LastSeen).Format("2006-01-02 15:04")
	default:
		return "offline"
	}
}
