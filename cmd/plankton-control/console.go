package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/plankton-sim/plankton-go/pkg/control"
)

func newConsoleCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive control console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := opts.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			c := &Console{client: client, address: opts.Address}
			return c.Run(ctx)
		},
	}
}

// Console is a readline session against one control server.
type Console struct {
	client  *control.Client
	address string
	out     io.Writer
}

// completer offers object and member names.
func (c *Console) completer(ctx context.Context) readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("objects"),
		readline.PcItem("quit"),
	}

	names, err := c.client.Objects(ctx)
	if err != nil {
		return readline.NewPrefixCompleter(items...)
	}
	for _, name := range names {
		obj, err := c.client.Object(ctx, name)
		if err != nil {
			continue
		}
		var members []readline.PrefixCompleterInterface
		for _, p := range obj.Properties() {
			members = append(members, readline.PcItem(p))
		}
		for _, f := range obj.Functions() {
			members = append(members, readline.PcItem(f))
		}
		items = append(items, readline.PcItem(name, members...))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "plankton> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    c.completer(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c.out = rl.Stdout()
	fmt.Fprintf(c.out, "Connected to %s. Type 'help' for commands.\n", c.address)

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		if c.Execute(ctx, line) {
			return nil
		}
	}
	return nil
}

// Execute runs one console line. It returns true when the console should
// exit. Errors are printed, not returned.
func (c *Console) Execute(ctx context.Context, line string) bool {
	args := splitArgs(line)
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	case "help", "?":
		c.printHelp()
		return false
	case "objects", "ls":
		args = nil
	}

	if err := execute(ctx, c.client, c.out, args); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  objects                      - List exposed objects
  <object>                     - Show properties and methods
  <object> <property>          - Read a property
  <object> <property> <value>  - Write a property
  <object> <method> [args...]  - Call a method
  help                         - Show this help
  quit                         - Exit the console

Values are JSON ('"two words"', '[1, 2]', '{"a": 1}'), anything else is
sent as a string.`)
}

// splitArgs splits a console line at whitespace. Whitespace inside double
// quotes, brackets or braces does not split, so JSON values stay intact.
// Single quotes group words and are removed.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		inToken bool
		depth   int
		quote   rune
		escaped bool
	)

	flush := func() {
		if inToken {
			args = append(args, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for _, r := range line {
		switch {
		case escaped:
			escaped = false
			cur.WriteRune(r)
		case quote == '"':
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				quote = 0
			}
			cur.WriteRune(r)
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'':
			quote = r
			inToken = true
		case r == '"':
			quote = r
			inToken = true
			cur.WriteRune(r)
		case r == '[' || r == '{':
			depth++
			inToken = true
			cur.WriteRune(r)
		case (r == ']' || r == '}') && depth > 0:
			depth--
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			inToken = true
			cur.WriteRune(r)
		}
	}
	flush()
	return args
}
