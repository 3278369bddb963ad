package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmerrifield20/WavePortal/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the flags shared by every subcommand.
type cli struct {
	portalURL string
	cfgFile   string
	keyFile   string
	cfg       *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: viper.New()}

	root := &cobra.Command{
		Use:   "wave",
		Short: "WavePortal CLI",
		Long: `wave is the command-line interface for a WavePortal.

Send waves, read the ledger, moderate waves as the portal owner, and watch
new waves arrive live.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.loadConfig()
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ~/.wave/config.yaml)")
	root.PersistentFlags().StringVar(&c.portalURL, "portal", "", "portal URL (default http://localhost:8080)")
	root.PersistentFlags().StringVar(&c.keyFile, "key", "", "signing key file (default ~/.wave/key)")

	root.AddCommand(
		c.keygenCmd(),
		c.whoamiCmd(),
		c.loginCmd(),
		c.sendCmd(),
		c.listCmd(),
		c.countCmd(),
		c.approveCmd(true),
		c.approveCmd(false),
		c.watchCmd(),
		c.infoCmd(),
		c.demoCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) loadConfig() {
	home, _ := os.UserHomeDir()
	if c.cfgFile != "" {
		c.cfg.SetConfigFile(c.cfgFile)
	} else {
		c.cfg.AddConfigPath(filepath.Join(home, ".wave"))
		c.cfg.SetConfigName("config")
		c.cfg.SetConfigType("yaml")
	}
	c.cfg.SetEnvPrefix("wave")
	c.cfg.AutomaticEnv()
	_ = c.cfg.ReadInConfig()

	if c.portalURL == "" {
		c.portalURL = c.cfg.GetString("portal_url")
	}
	if c.portalURL == "" {
		c.portalURL = "http://localhost:8080"
	}
	if c.keyFile == "" {
		c.keyFile = c.cfg.GetString("key_file")
	}
	if c.keyFile == "" {
		c.keyFile = filepath.Join(home, ".wave", "key")
	}
}

// readClient is an unauthenticated client.
func (c *cli) readClient() (*client.Client, error) {
	return client.New(c.portalURL)
}

// signingClient loads (or creates) the signing key and returns a client that logs in on demand.
func (c *cli) signingClient() (*client.Client, *client.Key, error) {
	key, err := client.LoadOrCreateKey(c.keyFile)
	if err != nil {
		return nil, nil, err
	}
	cl, err := client.New(c.portalURL, client.WithKey(key))
	if err != nil {
		return nil, nil, err
	}
	return cl, key, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wave CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wave %s (WavePortal)\n", version)
		},
	}
}
