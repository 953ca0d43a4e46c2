package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/log"
)

type counter struct {
	value int
	rate  float64
}

func counterInterface(c *counter) Interface {
	return Interface{
		Device:        "counter",
		InTerminator:  "\r",
		OutTerminator: "\n",
		Commands: []Command{
			{
				Name:    "get",
				Pattern: `^V\?$`,
				Doc:     "Returns the value.",
				Handler: func(...any) (string, error) { return fmt.Sprint(c.value), nil },
			},
			{
				Name:    "set",
				Pattern: `^V=([0-9]+)$`,
				Args:    []ArgMapping{Int},
				Handler: func(args ...any) (string, error) {
					c.value = args[0].(int)
					return "", nil
				},
			},
			{
				Name:    "rate",
				Pattern: `^R=(\S+)$`,
				Args:    []ArgMapping{Float},
				Handler: func(args ...any) (string, error) {
					c.rate = args[0].(float64)
					return "OK", nil
				},
			},
			{
				Name:    "echo",
				Pattern: `^E (\w+) (\w+)$`,
				Handler: func(args ...any) (string, error) {
					return args[1].(string) + args[0].(string), nil
				},
			},
			{
				Name:    "fail",
				Pattern: `^F$`,
				Handler: func(...any) (string, error) { return "", errors.New("device busy") },
			},
		},
	}
}

func TestHandleRequest(t *testing.T) {
	c := &counter{}
	a, err := New(counterInterface(c), Options{})
	require.NoError(t, err)

	reply, err := a.HandleRequest("V=42")
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Equal(t, 42, c.value)

	reply, err = a.HandleRequest("V?")
	require.NoError(t, err)
	assert.Equal(t, "42", reply)

	reply, err = a.HandleRequest("R=2.5")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
	assert.Equal(t, 2.5, c.rate)

	reply, err = a.HandleRequest("E a b")
	require.NoError(t, err)
	assert.Equal(t, "ba", reply)

	reply, err = a.HandleRequest("R=fast")
	assert.Error(t, err)
	assert.Contains(t, reply, "argument 1 of rate")

	reply, err = a.HandleRequest("F")
	assert.EqualError(t, err, "device busy")
	assert.Equal(t, "device busy", reply)

	_, err = a.HandleRequest("X")
	assert.ErrorIs(t, err, ErrNoMatchingCommand)
}

func TestCustomErrorHandler(t *testing.T) {
	iface := counterInterface(&counter{})
	iface.HandleError = func(request string, err error) string {
		if errors.Is(err, ErrNoMatchingCommand) {
			return "?" + request
		}
		return ""
	}
	a, err := New(iface, Options{})
	require.NoError(t, err)

	reply, _ := a.HandleRequest("Z")
	assert.Equal(t, "?Z", reply)

	reply, _ = a.HandleRequest("F")
	assert.Empty(t, reply)
}

func TestInvalidCommands(t *testing.T) {
	tests := []struct {
		name string
		cmds []Command
	}{
		{"no handler", []Command{{Name: "a", Pattern: "^a$"}}},
		{"bad pattern", []Command{{Name: "a", Pattern: "(", Handler: func(...any) (string, error) { return "", nil }}}},
		{"group mismatch", []Command{{
			Name: "a", Pattern: "^(a)(b)$", Args: []ArgMapping{String},
			Handler: func(...any) (string, error) { return "", nil },
		}}},
		{"duplicate", []Command{
			{Name: "a", Pattern: "^a$", Handler: func(...any) (string, error) { return "", nil }},
			{Name: "a", Pattern: "^b$", Handler: func(...any) (string, error) { return "", nil }},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Interface{Commands: tt.cmds}, Options{})
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

func TestParseArgs(t *testing.T) {
	o, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, Options{BindAddress: DefaultBindAddress, Port: DefaultPort}, o)

	o, err = ParseArgs([]string{"-b", "127.0.0.1", "--port", "1234", "-t"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", o.Address())
	assert.True(t, o.TelnetMode)

	_, err = ParseArgs([]string{"--baud", "9600"})
	assert.Error(t, err)

	_, err = ParseArgs([]string{"extra"})
	assert.Error(t, err)

	assert.Contains(t, Usage(), "--bind-address")
}

func TestTelnetModeOverridesTerminators(t *testing.T) {
	a, err := New(counterInterface(&counter{}), Options{TelnetMode: true})
	require.NoError(t, err)
	assert.Contains(t, a.Documentation(), `request terminator: "\r\n"`)
	assert.Contains(t, a.Documentation(), `^V=([0-9]+)$ (set):`)
	assert.Contains(t, a.Documentation(), "Undocumented.")
}

type fakeDevice struct{ device.Device }

func TestFactoryChecksDeviceType(t *testing.T) {
	factory := Factory(func(*counterDevice) Interface { return Interface{} })

	_, err := factory(fakeDevice{}, nil)
	assert.ErrorIs(t, err, adapter.ErrDeviceType)

	a, err := factory(&counterDevice{}, []string{"-p", "0"})
	require.NoError(t, err)
	assert.Equal(t, Protocol, a.Protocol())
}

type counterDevice struct{ fakeDevice }

func TestAdapterServesRequestsInsideHandle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := &counter{}
	a, err := New(counterInterface(c), Options{BindAddress: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	mem := log.NewMemoryLogger(0)
	a.SetLogger(mem)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	assert.True(t, a.IsRunning())

	conn, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("V=7\rV?\rX\r"))
	require.NoError(t, err)

	replies := make(chan string, 2)
	go func() {
		r := bufio.NewReader(conn)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				close(replies)
				return
			}
			replies <- strings.TrimSuffix(line, "\n")
		}
	}()

	var got []string
	deadline := time.Now().Add(3 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		a.Handle(ctx, 20*time.Millisecond)
		select {
		case r, ok := <-replies:
			if ok {
				got = append(got, r)
			}
		default:
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, "7", got[0])
	assert.Contains(t, got[1], ErrNoMatchingCommand.Error())
	assert.Equal(t, 7, c.value)

	cat := log.CategoryMessage
	events := mem.Filter(log.Filter{Category: &cat})
	require.Len(t, events, 6)
	assert.Equal(t, "set", events[0].Message.Command)
	assert.Equal(t, log.StatusNoMatch, events[5].Message.Status)

	conn.Close()
	require.NoError(t, a.Stop())
	assert.False(t, a.IsRunning())
	assert.Nil(t, a.Addr())

	// Handle on a stopped adapter returns at once.
	a.Handle(ctx, time.Hour)
}
