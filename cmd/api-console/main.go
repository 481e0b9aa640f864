// Command api-console loads an OpenAPI spec the way the proxy does and lets
// you list, search and call its tools interactively.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/services"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		spec       string
		specName   string
		baseURL    string
		mode       string
		history    string
	)

	root := &cobra.Command{
		Use:           "api-console",
		Short:         "Explore and call the tools generated from an OpenAPI spec",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			for name, dst := range map[string]*string{
				"spec":      &cfg.Spec,
				"spec-name": &cfg.SpecName,
				"base-url":  &cfg.BaseURL,
				"mode":      &cfg.Mode,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetString(name)
					*dst = v
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.New(cfg.EffectiveLogLevel())
			rt, err := services.NewRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			return repl(cmd.Context(), rt, history)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file (default $"+server.ConfigFileEnv+")")
	root.Flags().StringVarP(&spec, "spec", "s", "", "OpenAPI document: file path or http(s) URL")
	root.Flags().StringVar(&specName, "spec-name", "", "load the named spec from the database registry")
	root.Flags().StringVar(&baseURL, "base-url", "", "override the API base URL from the spec")
	root.Flags().StringVarP(&mode, "mode", "m", "", "tool mode: full or search")
	root.Flags().StringVar(&history, "history", defaultHistoryFile(), "history file")
	return root
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openapi-mcp-console_history")
}

func completer(rt *services.Runtime) *readline.PrefixCompleter {
	toolNames := func(string) []string {
		tools := rt.Dispatcher().Tools()
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name)
		}
		return names
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("tools"),
		readline.PcItem("search",
			readline.PcItem("--tag"),
			readline.PcItem("--method"),
			readline.PcItem("--limit"),
		),
		readline.PcItem("schema", readline.PcItemDynamic(toolNames)),
		readline.PcItem("call",
			readline.PcItem("--check", readline.PcItemDynamic(toolNames)),
			readline.PcItemDynamic(toolNames),
		),
		readline.PcItem("summary"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

func repl(ctx context.Context, rt *services.Runtime, history string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[36mapi>\033[0m ",
		HistoryFile:       history,
		AutoComplete:      completer(rt),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	spec := rt.Spec()
	d := rt.Dispatcher()
	fmt.Fprintf(rl.Stdout(), "%s: %d tools, %s mode, calling %s\n", spec.Name, len(d.Tools()), d.Mode(), d.BaseURL())
	fmt.Fprintln(rl.Stdout(), `Type "help" for commands.`)

	c := newConsole(rt.Dispatcher, rl.Stdout())
	for !c.quit {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.exec(ctx, strings.TrimSpace(line)); err != nil {
			fmt.Fprintln(rl.Stdout(), "error:", err)
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
