package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xycloo/zephyr-go/fixture"
	"github.com/xycloo/zephyr-go/store"
)

func newSeedCmd(a *app) *cobra.Command {
	var fixtureFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Append a fixture to the store",
		Long: `Append a YAML fixture to the store.
Example: zephyr-sim seed --store sqlite --path ledger.db -f token.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fixture.LoadYAMLFile(fixtureFile)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			stored, err := f.Persist(cmd.Context(), s)
			if err != nil {
				return fmt.Errorf("failed to seed fixture: %w", err)
			}
			for _, t := range stored {
				fmt.Fprintf(a.out, "sequence %d: %d changes\n", t.Sequence, len(t.Changes()))
			}
			a.logger.Info("fixture seeded", "fixture", f.Name, "transitions", len(stored))
			return nil
		},
	}
	cmd.Flags().StringVarP(&fixtureFile, "fixture", "f", "", "Fixture file (required)")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var (
		at    uint64
		isHex bool
	)
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0], isHex)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			value, found, err := s.QueryByKey(cmd.Context(), key, at)
			if err != nil {
				return fmt.Errorf("failed to query key: %w", err)
			}
			if !found {
				return fmt.Errorf("key %s not found", renderBytes(key))
			}
			fmt.Fprintln(a.out, "0x"+hex.EncodeToString(value))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&at, "at", 0, "Sequence to read at, 0 for the head")
	cmd.Flags().BoolVar(&isHex, "hex", false, "Key is hex encoded")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		prefix string
		isHex  bool
		q      store.RangeQuery
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List entry changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseKey(prefix, isHex)
			if err != nil {
				return err
			}
			q.Prefix = p
			if q.To != 0 && q.To < q.From {
				return fmt.Errorf("--to %d is before --from %d", q.To, q.From)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			changes, err := s.QueryByRange(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("failed to query history: %w", err)
			}
			for _, c := range changes {
				fmt.Fprintln(a.out, renderChange(c))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix")
	cmd.Flags().BoolVar(&isHex, "hex", false, "Prefix is hex encoded")
	cmd.Flags().Uint64Var(&q.From, "from", 0, "First sequence")
	cmd.Flags().Uint64Var(&q.To, "to", 0, "Last sequence, 0 for the head")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum number of changes, 0 for all")
	return cmd
}

func newOpsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ops <sequence>",
		Short: "Print the operation log of a transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q: %w", args[0], err)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			log, ok := s.(store.OpLog)
			if !ok {
				return errors.New("store does not keep an operation log")
			}
			ops, err := log.Operations(cmd.Context(), seq)
			if err != nil {
				return err
			}
			for i, op := range ops {
				fmt.Fprintf(a.out, "%d\t%s\t%s\t0x%s\n", i, op.Kind, renderBytes(op.Key), hex.EncodeToString(op.Value))
			}
			return nil
		},
	}
}
