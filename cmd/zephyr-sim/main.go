package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xycloo/zephyr-go/config"
	_ "github.com/xycloo/zephyr-go/sim"
	"github.com/xycloo/zephyr-go/store"
)

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	store  store.Store
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "zephyr-sim",
		Short: "Local host simulator for ledger programs",
		Long: `Local host simulator for ledger programs.
It seeds a ledger history store from fixtures, runs compiled guests against it
and inspects the committed history.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				a.v.SetConfigFile(configFile)
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			logger, err := cfg.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.logger, a.out = cfg, logger, cmd.OutOrStdout()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file")
	flags.String("store", string(config.StoreMemory), "Store kind: memory, sqlite or leveldb")
	flags.String("path", "", "Store path, sqlite file or leveldb directory")
	flags.String("log-level", "info", "Log level")
	flags.Bool("read-only", false, "Reject storage writes")
	mustBind(a.v, "store.kind", flags.Lookup("store"))
	mustBind(a.v, "store.path", flags.Lookup("path"))
	mustBind(a.v, "log_level", flags.Lookup("log-level"))
	mustBind(a.v, "read_only", flags.Lookup("read-only"))

	rootCmd.AddCommand(newSeedCmd(a))
	rootCmd.AddCommand(newGetCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newOpsCmd(a))
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newInspectCmd(a))
	return rootCmd
}

// openStore opens the configured store once per command.
func (a *app) openStore() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := a.cfg.OpenStore(a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = s
	return s, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
