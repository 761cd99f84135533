package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/lock"
	"github.com/flemzord/tgbridge/internal/telegram"
	"github.com/flemzord/tgbridge/pkg/app"
)

var errNoMatch = errors.New("no contact matches")

// withClient starts only the client module and runs fn holding the client
// lock, so a running sync job elsewhere in the process never interleaves.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *telegram.Client) error) error {
	rt, err := app.Load(runParams(cmd), "client.telegram")
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.App.Start(); err != nil {
		return err
	}
	client, ok := core.Service[*telegram.Client](rt.Context, "telegram.client")
	if !ok {
		return errors.New("telegram.client service not registered")
	}
	var access lock.ExclusiveAccess = lock.Noop{}
	if l, ok := core.Service[lock.ExclusiveAccess](rt.Context, "telegram.lock"); ok {
		access = l
	}
	return lock.With(cmd.Context(), access, func(ctx context.Context) error {
		return fn(ctx, client)
	})
}

func sendCmd() *cobra.Command {
	var lookup bool
	cmd := &cobra.Command{
		Use:   "send <peer> <message...>",
		Short: "Send a message to a peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return withClient(cmd, func(ctx context.Context, c *telegram.Client) error {
				peer := args[0]
				if lookup {
					resolved, err := resolvePeer(ctx, c, peer)
					if err != nil {
						return err
					}
					peer = resolved
				}
				if err := c.SendMessage(ctx, peer, text); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", peer)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&lookup, "lookup", false, "Fuzzy-match the peer against the contact list")
	return cmd
}

// resolvePeer returns the peer of the best contact matching query.
func resolvePeer(ctx context.Context, c *telegram.Client, query string) (string, error) {
	if _, err := c.ContactList(ctx); err != nil {
		return "", err
	}
	matches := c.FindPeer(query)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w %q", errNoMatch, query)
	}
	return matches[0].Peer, nil
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Start the client, dump its dialogs and contacts, and stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *telegram.Client) error {
				out := cmd.OutOrStdout()
				info := c.Info()
				fmt.Fprintf(out, "state: %s pid: %d\n\n", info.State, info.PID)

				dialogs, err := c.DialogList(ctx, telegram.DialogsAll)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Dialogs:")
				printDialogs(out, dialogs)

				contacts, err := c.ContactList(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "\nContacts:")
				printContacts(out, contacts)

				if lines := c.Unparsed(); len(lines) > 0 {
					fmt.Fprintf(out, "\nUnparsed lines: %d\n", len(lines))
				}
				return nil
			})
		},
	}
}

func contactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List the account's contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *telegram.Client) error {
				contacts, err := c.ContactList(ctx)
				if err != nil {
					return err
				}
				printContacts(cmd.OutOrStdout(), contacts)
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <peer>",
		Short: "Print the recent messages exchanged with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *telegram.Client) error {
				_, msgs, err := c.History(ctx, args[0], limit)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", telegram.DefaultHistoryLimit, "Maximum number of messages")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <peer>",
		Short: "Show the details of one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *telegram.Client) error {
				info, err := c.ContactInfo(ctx, args[0])
				if err != nil {
					return err
				}
				printInfo(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
}

func printContacts(w io.Writer, contacts map[string]telegram.Contact) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHONE\tPEER\tNAME\tSTATUS\tLAST SEEN")
	for _, phone := range slices.Sorted(maps.Keys(contacts)) {
		c := contacts[phone]
		seen := "-"
		if t, ok := c.LastSeen.Get(); ok {
			seen = t.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", phone, c.Peer, c.Name, c.Status, seen)
	}
	_ = tw.Flush()
}

func printDialogs(w io.Writer, dialogs []telegram.DialogEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PEER\tUSER\tMESSAGES\tSTATE")
	for _, d := range dialogs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Peer, d.User, d.Messages, d.State)
	}
	_ = tw.Flush()
}

func printHistory(w io.Writer, msgs []telegram.Message) {
	for _, m := range msgs {
		arrow := "<<<"
		if m.Direction == telegram.DirectionOutgoing {
			arrow = ">>>"
		}
		fmt.Fprintf(w, "%s [%s] %s %s %s\n", m.ID, m.Date, m.Name, arrow, m.Text)
	}
}

func printInfo(w io.Writer, info *telegram.ContactInfo) {
	fmt.Fprintf(w, "name:      %s\n", info.Name)
	fmt.Fprintf(w, "real name: %s\n", info.RealName)
	fmt.Fprintf(w, "phone:     %s\n", info.Phone)
	fmt.Fprintf(w, "peer:      %s\n", info.Peer)
	fmt.Fprintf(w, "status:    %s\n", info.Status)
	if t, ok := info.LastSeen.Get(); ok {
		fmt.Fprintf(w, "last seen: %s\n", t.Format("2006-01-02 15:04:05"))
	}
}
