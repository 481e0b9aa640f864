package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
)

// console runs one command line at a time against a dispatcher.
type console struct {
	dispatcher func() *openapi2mcp.Dispatcher
	out        io.Writer
	quit       bool
}

func newConsole(dispatcher func() *openapi2mcp.Dispatcher, out io.Writer) *console {
	return &console{dispatcher: dispatcher, out: out}
}

// exec parses and runs line. Commands are rebuilt for every line so flag
// values never leak from one line into the next.
func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	root := c.commands()
	root.SetArgs(fields)
	root.SetOut(c.out)
	root.SetErr(c.out)
	return root.ExecuteContext(ctx)
}

func (c *console) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "api-console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank endpoints against a free-text query",
		Args:  cobra.MinimumNArgs(1),
	}
	var tags, methods []string
	var limit int
	search.Flags().StringSliceVar(&tags, "tag", nil, "only endpoints with one of these tags")
	search.Flags().StringSliceVar(&methods, "method", nil, "only endpoints using one of these methods")
	search.Flags().IntVar(&limit, "limit", openapi2mcp.DefaultSearchLimit, "maximum number of results")
	search.RunE = func(cmd *cobra.Command, args []string) error {
		c.search(openapi2mcp.SearchQuery{
			Query:   strings.Join(args, " "),
			Tags:    tags,
			Methods: methods,
			Limit:   limit,
		})
		return nil
	}

	call := &cobra.Command{
		Use:   "call [--check] <tool> [json-arguments]",
		Short: "Invoke an endpoint tool",
		Args:  cobra.MinimumNArgs(1),
	}
	var check bool
	call.Flags().BoolVar(&check, "check", false, "validate the arguments against the tool's input schema first")
	// everything after the tool name is the JSON document, which may
	// contain tokens that look like flags
	call.Flags().SetInterspersed(false)
	call.RunE = func(cmd *cobra.Command, args []string) error {
		return c.call(cmd.Context(), args[0], strings.Join(args[1:], " "), check)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "tools [filter]",
			Short: "List endpoint tools, optionally only those whose name or path contains filter",
			Args:  cobra.MaximumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				filter := ""
				if len(args) == 1 {
					filter = args[0]
				}
				c.tools(filter)
			},
		},
		search,
		&cobra.Command{
			Use:   "schema <tool>",
			Short: "Print a tool's input schema",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.schema(args[0])
			},
		},
		call,
		&cobra.Command{
			Use:   "summary",
			Short: "Count tools by method and tag",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				openapi2mcp.PrintToolSummary(c.out, c.dispatcher().Tools())
			},
		},
		&cobra.Command{
			Use:     "quit",
			Aliases: []string{"exit"},
			Short:   "Leave the console",
			Run: func(cmd *cobra.Command, args []string) {
				c.quit = true
			},
		},
	)
	return root
}

func (c *console) tools(filter string) {
	filter = strings.ToLower(filter)
	n := 0
	for _, t := range c.dispatcher().Tools() {
		ep := t.Endpoint
		if filter != "" && !strings.Contains(t.Name, filter) && !strings.Contains(strings.ToLower(ep.Path), filter) {
			continue
		}
		fmt.Fprintf(c.out, "%-32s %-7s %s\n", t.Name, ep.Method, ep.Path)
		n++
	}
	fmt.Fprintf(c.out, "%d tools\n", n)
}

func (c *console) search(q openapi2mcp.SearchQuery) {
	tools := c.dispatcher().Tools()
	matches := openapi2mcp.SearchTools(tools, q)
	if len(matches) == 0 {
		fmt.Fprintf(c.out, "No endpoints found matching '%s'. Available tags: %s\n",
			q.Query, strings.Join(openapi2mcp.AvailableTags(tools), ", "))
		return
	}
	for _, m := range matches {
		ep := m.Tool.Endpoint
		fmt.Fprintf(c.out, "%4d  %-32s %-7s %s\n", m.Score, m.Tool.Name, ep.Method, ep.Path)
		if ep.Summary != "" {
			fmt.Fprintf(c.out, "      %s\n", ep.Summary)
		}
	}
}

func (c *console) schema(name string) error {
	tool, ok := c.dispatcher().Lookup(name)
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	data, err := json.MarshalIndent(tool.InputSchema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}

func (c *console) call(ctx context.Context, name, rawArgs string, check bool) error {
	d := c.dispatcher()
	tool, ok := d.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	if check {
		if err := validateArgs(tool.InputSchema, args); err != nil {
			return err
		}
	}

	// search mode only answers the meta-tools, so go through call_endpoint
	if d.Mode() == openapi2mcp.ModeSearch {
		args[openapi2mcp.EndpointIDArg] = name
		name = openapi2mcp.CallEndpointTool
	}
	res := d.CallTool(ctx, name, args)
	if res.IsError {
		fmt.Fprintln(c.out, "error:", res.Text)
		return nil
	}
	fmt.Fprintln(c.out, res.Text)
	return nil
}

// validateArgs checks args against a tool input schema and lists every
// violation.
func validateArgs(schema, args map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("failed to validate arguments: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}
