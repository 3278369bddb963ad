package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/jmerrifield20/WavePortal/pkg/client"
	"github.com/spf13/cobra"
)

// ── keys ─────────────────────────────────────────────────────────────────────

func (c *cli) keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(c.keyFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", c.keyFile)
			}
			key, err := client.GenerateKey()
			if err != nil {
				return err
			}
			if err := client.SaveKey(c.keyFile, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key:     %s\n", c.keyFile)
			fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\n", key.Address())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the address of the signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := client.LoadKey(c.keyFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Address())
			return nil
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign a login challenge and print a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, _, err := c.signingClient()
			if err != nil {
				return err
			}
			token, err := cl.Login(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

// ── waves ────────────────────────────────────────────────────────────────────

func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Wave at the portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, _, err := c.signingClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w, err := cl.Wave(ctx, args[0])
			if err != nil {
				return explainWaveError(err)
			}
			total, err := cl.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Waved #%d at %s\n", w.Index, w.Time().Format(time.RFC3339))
			fmt.Fprintf(cmd.OutOrStdout(), "Total waves: %d\n", total)
			return nil
		},
	}
}

func explainWaveError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && errors.Is(err, client.ErrRateLimited) {
		return fmt.Errorf("wait before waving again (retry in %s): %w", apiErr.RetryAfter, err)
	}
	return err
}

func (c *cli) listCmd() *cobra.Command {
	var (
		format  string
		visible bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List waves",
		Long: `List prints the ledger in append order.

With --visible it prints the moderated view instead: approved waves only,
or every wave with unapproved ones marked when the key belongs to the owner.
The moderated view is newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !visible {
				cl, err := c.readClient()
				if err != nil {
					return err
				}
				waves, err := cl.Waves(ctx)
				if err != nil {
					return err
				}
				return printWaves(cmd.OutOrStdout(), format, waves, false)
			}

			cl, err := c.visibleClient()
			if err != nil {
				return err
			}
			res, err := cl.VisibleWaves(ctx)
			if err != nil {
				return err
			}
			return printWaves(cmd.OutOrStdout(), format, res.Waves, res.IsOwner)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&visible, "visible", false, "Show the moderated view for the signing key")
	return cmd
}

// visibleClient signs in when a key exists, otherwise reads anonymously.
func (c *cli) visibleClient() (*client.Client, error) {
	key, err := client.LoadKey(c.keyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c.readClient()
		}
		return nil, err
	}
	return client.New(c.portalURL, client.WithKey(key))
}

func (c *cli) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the total number of waves",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.readClient()
			if err != nil {
				return err
			}
			n, err := cl.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the portal owner, cooldown and total",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.readClient()
			if err != nil {
				return err
			}
			info, err := cl.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Portal:   %s\n", c.portalURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Owner:    %s\n", info.Owner)
			fmt.Fprintf(cmd.OutOrStdout(), "Cooldown: %s\n", time.Duration(info.CooldownSeconds)*time.Second)
			fmt.Fprintf(cmd.OutOrStdout(), "Waves:    %d\n", info.TotalWaves)
			return nil
		},
	}
}

// ── moderation ───────────────────────────────────────────────────────────────

func (c *cli) approveCmd(approved bool) *cobra.Command {
	use, short, verb := "approve <index>", "Approve a wave (owner only)", "Approved"
	if !approved {
		use, short, verb = "reject <index>", "Reject a wave (owner only)", "Rejected"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			cl, _, err := c.signingClient()
			if err != nil {
				return err
			}
			if err := cl.SetApproval(cmd.Context(), idx, approved); err != nil {
				switch {
				case errors.Is(err, client.ErrForbidden):
					return fmt.Errorf("only the portal owner can moderate waves: %w", err)
				case errors.Is(err, client.ErrNotFound):
					return fmt.Errorf("no wave #%d: %w", idx, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wave #%d\n", verb, idx)
			return nil
		},
	}
}

// ── watch ────────────────────────────────────────────────────────────────────

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print new waves as they arrive (Ctrl-C to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.readClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			events, errc := cl.Watch(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for new waves...\n", c.portalURL)
			for ev := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s %s: %s\n",
					ev.Index,
					time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339),
					ev.From,
					ev.Message,
				)
			}
			if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// ── demo ─────────────────────────────────────────────────────────────────────

func (c *cli) demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Wave from a throwaway key and from your key, approve your wave, print everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			guest, err := client.GenerateKey()
			if err != nil {
				return err
			}
			guestClient, err := client.New(c.portalURL, client.WithKey(guest))
			if err != nil {
				return err
			}
			cl, key, err := c.signingClient()
			if err != nil {
				return err
			}

			if _, err := guestClient.Wave(ctx, "A message!"); err != nil {
				return fmt.Errorf("guest wave: %w", err)
			}
			total, err := cl.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s waved. Total waves: %d\n", guest.Address(), total)

			mine, err := cl.Wave(ctx, "Another message!")
			if err != nil {
				return explainWaveError(err)
			}
			total, err = cl.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s waved. Total waves: %d\n", key.Address(), total)

			if err := cl.Approve(ctx, mine.Index); err != nil {
				if !errors.Is(err, client.ErrForbidden) {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Could not approve #%d: %s is not the portal owner\n", mine.Index, key.Address())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Approved wave #%d\n", mine.Index)
			}

			waves, err := cl.Waves(ctx)
			if err != nil {
				return err
			}
			return printWaves(cmd.OutOrStdout(), "text", waves, false)
		},
	}
}
