package stream

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/plankton-sim/plankton-go/pkg/device"
)

// Command errors.
var (
	// ErrNoMatchingCommand indicates a request no command pattern matched.
	ErrNoMatchingCommand = errors.New("none of the device's commands matched")

	// ErrInvalidCommand indicates a malformed command definition.
	ErrInvalidCommand = errors.New("invalid command")
)

// ArgMapping converts a captured group into a handler argument.
type ArgMapping func(string) (any, error)

// Int converts a decimal integer.
func Int(s string) (any, error) {
	return strconv.Atoi(s)
}

// Float converts a floating point number.
func Float(s string) (any, error) {
	return strconv.ParseFloat(s, 64)
}

// String passes the captured text through.
func String(s string) (any, error) {
	return s, nil
}

// Handler processes a matched request. An empty reply without error sends
// nothing back.
type Handler func(args ...any) (string, error)

// Command maps requests matching Pattern to Handler.
type Command struct {
	Name    string
	Pattern string

	// Args converts the capture groups. When nil every group is passed
	// as a string.
	Args []ArgMapping

	Doc     string
	Handler Handler
}

type boundCommand struct {
	Command
	re *regexp.Regexp
}

func bind(cmds []Command) ([]boundCommand, error) {
	bound := make([]boundCommand, 0, len(cmds))
	names := make(map[string]struct{}, len(cmds))

	for _, c := range cmds {
		if c.Handler == nil {
			return nil, fmt.Errorf("%w: %s has no handler", ErrInvalidCommand, c.Name)
		}
		if _, dup := names[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidCommand, c.Name)
		}
		names[c.Name] = struct{}{}

		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCommand, c.Name, err)
		}
		if c.Args != nil && len(c.Args) != re.NumSubexp() {
			return nil, fmt.Errorf("%w: %s has %d groups but %d argument mappings",
				ErrInvalidCommand, c.Name, re.NumSubexp(), len(c.Args))
		}
		bound = append(bound, boundCommand{Command: c, re: re})
	}
	return bound, nil
}

// match returns the converted arguments if the request matches.
func (c *boundCommand) match(request string) ([]any, bool, error) {
	groups := c.re.FindStringSubmatch(request)
	if groups == nil {
		return nil, false, nil
	}

	args := make([]any, 0, len(groups)-1)
	for i, g := range groups[1:] {
		if c.Args == nil {
			args = append(args, g)
			continue
		}
		v, err := c.Args[i](g)
		if err != nil {
			return nil, true, fmt.Errorf("argument %d of %s: %w", i+1, c.Name, err)
		}
		args = append(args, v)
	}
	return args, true, nil
}

func (c *boundCommand) documentation() string {
	doc := c.Doc
	if strings.TrimSpace(doc) == "" {
		doc = "Undocumented."
	}
	return fmt.Sprintf("%s (%s):\n%s", c.Pattern, c.Name, device.FormatDocText(doc))
}
