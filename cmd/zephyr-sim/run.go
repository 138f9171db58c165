package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/xycloo/zephyr-go/env"
	"github.com/xycloo/zephyr-go/fixture"
	"github.com/xycloo/zephyr-go/host"
	"github.com/xycloo/zephyr-go/types"
	"github.com/xycloo/zephyr-go/wasi"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		entry       string
		invocation  uint64
		timestamp   int64
		fixtureFile string
		trace       bool
		timeout     time.Duration
		memoryPages uint32
	)
	cmd := &cobra.Command{
		Use:   "run <module.wasm>",
		Short: "Run a compiled guest as one invocation",
		Long: `Run a compiled guest as one invocation against the store.
Example: zephyr-sim run program.wasm --entry on_close --invocation 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read module: %w", err)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if fixtureFile != "" {
				f, err := fixture.LoadYAMLFile(fixtureFile)
				if err != nil {
					return err
				}
				if _, err := f.Persist(cmd.Context(), s); err != nil {
					return fmt.Errorf("failed to seed fixture: %w", err)
				}
			}

			backend, err := host.Get(a.cfg.Backend, a.cfg.BackendParams(s))
			if err != nil {
				return err
			}
			opts := []env.Option{env.WithLogger(a.logger)}
			if trace {
				opts = append(opts, env.WithTracing())
			}
			inv := types.Invocation{ID: invocation, Contract: []byte(filepath.Base(args[0])), Timestamp: timestamp}

			out, err := env.New(backend, opts...).Run(inv, func(e *env.Env) error {
				return wasi.Run(cmd.Context(), code, entry, e,
					wasi.WithLogger(a.logger),
					wasi.WithStdout(a.out),
					wasi.WithStderr(cmd.ErrOrStderr()),
					wasi.WithTimeout(timeout),
					wasi.WithMemoryLimitPages(memoryPages))
			})
			if out != nil {
				printOutcome(a, out)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&entry, "entry", "e", "on_close", "Exported function to call")
	cmd.Flags().Uint64Var(&invocation, "invocation", 1, "Invocation id")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Invocation timestamp, 0 for now")
	cmd.Flags().StringVarP(&fixtureFile, "fixture", "f", "", "Fixture to seed before running")
	cmd.Flags().BoolVar(&trace, "trace", false, "Log every host call")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop the guest after this long, 0 for no limit")
	cmd.Flags().Uint32Var(&memoryPages, "memory-pages", 0, "Guest memory limit in 64KiB pages, 0 for the default")
	return cmd
}

func printOutcome(a *app, out *env.Outcome) {
	if !out.Committed {
		fmt.Fprintf(a.out, "invocation %d rolled back: %v\n", out.Invocation.ID, out.Err)
		return
	}
	fmt.Fprintf(a.out, "invocation %d committed\n", out.Invocation.ID)
	for i, ev := range out.Events {
		topics := make([]string, len(ev.Topics))
		for j, t := range ev.Topics {
			topics[j] = renderBytes(t)
		}
		fmt.Fprintf(a.out, "event %d [%s] 0x%s\n", i, strings.Join(topics, " "), hex.EncodeToString(ev.Data))
	}
	if out.Result != nil {
		fmt.Fprintf(a.out, "result 0x%s\n", hex.EncodeToString(out.Result))
	}
}

var hostImports = map[string]bool{
	"zephyr_invoke":      true,
	"zephyr_take_result": true,
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "List the imports and exports of a compiled guest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read module: %w", err)
			}
			ctx := cmd.Context()
			runtime := wazero.NewRuntime(ctx)
			defer runtime.Close(ctx)

			compiled, err := runtime.CompileModule(ctx, code)
			if err != nil {
				return fmt.Errorf("failed to compile WebAssembly module: %w", err)
			}

			fmt.Fprintln(a.out, "imports:")
			var unknown []string
			for _, def := range compiled.ImportedFunctions() {
				module, name, _ := def.Import()
				fmt.Fprintf(a.out, "  %s.%s%s\n", module, name, signature(def))
				if module == wasi.ModuleName && !hostImports[name] {
					unknown = append(unknown, name)
				}
			}

			fmt.Fprintln(a.out, "exports:")
			exports := compiled.ExportedFunctions()
			names := make([]string, 0, len(exports))
			for name := range exports {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(a.out, "  %s%s\n", name, signature(exports[name]))
			}

			if len(unknown) > 0 {
				return fmt.Errorf("module imports unknown host functions: %s", strings.Join(unknown, ", "))
			}
			return nil
		},
	}
}

func signature(def api.FunctionDefinition) string {
	names := func(ts []api.ValueType) string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = api.ValueTypeName(t)
		}
		return strings.Join(out, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(def.ParamTypes()), names(def.ResultTypes()))
}
