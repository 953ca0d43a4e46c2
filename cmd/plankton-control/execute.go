package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/plankton-sim/plankton-go/pkg/control"
)

var (
	errUnknownMember = errors.New("unknown member")
	errReadOnly      = errors.New("property is read-only")
	errTooManyArgs   = errors.New("too many arguments")
)

// execute runs one command: list objects, describe an object, get or set
// a property, or call a method.
func execute(ctx context.Context, client *control.Client, w io.Writer, args []string) error {
	if len(args) == 0 {
		names, err := client.Objects(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	obj, err := client.Object(ctx, args[0])
	if err != nil {
		return fmt.Errorf("object %q: %w", args[0], err)
	}
	if len(args) == 1 {
		return printAPI(ctx, w, obj)
	}

	member, rest := args[1], args[2:]
	switch {
	case obj.IsProperty(member):
		switch len(rest) {
		case 0:
			raw, err := obj.Get(ctx, member)
			if err != nil {
				return err
			}
			printResult(w, raw)
			return nil
		case 1:
			if !obj.IsWritable(member) {
				return fmt.Errorf("%w: %s.%s", errReadOnly, obj.Name(), member)
			}
			return obj.Set(ctx, member, parseValue(rest[0]))
		default:
			return fmt.Errorf("%w: property %s.%s takes one value", errTooManyArgs, obj.Name(), member)
		}

	case obj.IsFunction(member):
		raw, err := obj.Call(ctx, member, parseValues(rest)...)
		if err != nil {
			return err
		}
		printResult(w, raw)
		return nil

	default:
		return fmt.Errorf("%w: %s has no member %q", errUnknownMember, obj.Name(), member)
	}
}

// printAPI describes an object with the current property values.
func printAPI(ctx context.Context, w io.Writer, obj *control.ObjectProxy) error {
	props := obj.Properties()
	fns := obj.Functions()

	width := 0
	for _, name := range props {
		width = max(width, len(name))
	}

	fmt.Fprintf(w, "Type: %s\n", obj.API().Class)
	if len(props) > 0 {
		fmt.Fprintln(w, "Properties (current values):")
		for _, name := range props {
			raw, err := obj.Get(ctx, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			access := ""
			if !obj.IsWritable(name) {
				access = " [read-only]"
			}
			fmt.Fprintf(w, "    %-*s  (%s)%s\n", width, name, compact(raw), access)
		}
	}
	if len(fns) > 0 {
		fmt.Fprintln(w, "Methods:")
		for _, name := range fns {
			fmt.Fprintf(w, "    %s\n", name)
		}
	}
	return nil
}

// printResult prints strings without quotes and other values as JSON.
// Null results print nothing.
func printResult(w io.Writer, raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		fmt.Fprintln(w, s)
		return
	}
	fmt.Fprintln(w, compact(raw))
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// parseValue decodes a command line argument as JSON, falling back to the
// plain string.
func parseValue(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

func parseValues(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = parseValue(arg)
	}
	return values
}
