package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/plankton-sim/plankton-go/pkg/device"
	"github.com/plankton-sim/plankton-go/pkg/log"
	"github.com/plankton-sim/plankton-go/pkg/transport"
)

type testObject struct {
	A int
	B int

	getCalls [][2]int
	setCalls [][2]int
}

func (o *testObject) GetTest(x, y int) { o.getCalls = append(o.getCalls, [2]int{x, y}) }
func (o *testObject) SetTest(x, y int) { o.setCalls = append(o.setCalls, [2]int{x, y}) }

func newTestObject() *testObject { return &testObject{A: 10, B: 20} }

func TestAllMembersExposed(t *testing.T) {
	o, err := Expose(newTestObject(), nil, nil)
	require.NoError(t, err)

	want := []string{":api", "a:get", "a:set", "b:get", "b:set", "get_test", "set_test"}
	assert.Equal(t, want, o.Methods())
	assert.Equal(t, len(want), o.Len())
}

func TestSelectAndExcludeMembers(t *testing.T) {
	o, err := Expose(newTestObject(), []string{"a", "get_test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{":api", "a:get", "a:set", "get_test"}, o.Methods())

	o, err = Expose(newTestObject(), nil, []string{"a", "set_test"})
	require.NoError(t, err)
	assert.Equal(t, []string{":api", "b:get", "b:set", "get_test"}, o.Methods())

	o, err = Expose(newTestObject(), []string{"a", "get_test"}, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{":api", "get_test"}, o.Methods())
}

func TestInvalidMemberFails(t *testing.T) {
	_, err := Expose(newTestObject(), []string{"non_existing"}, nil)
	assert.ErrorIs(t, err, ErrUnknownMember)

	_, err = Expose(testObject{}, nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestPropertyAccess(t *testing.T) {
	obj := newTestObject()
	obj.A = 233
	o, err := Expose(obj, nil, nil)
	require.NoError(t, err)

	v, err := o.Call("a:get")
	require.NoError(t, err)
	assert.Equal(t, 233, v)

	_, err = o.Call("a:set", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, obj.A)

	_, err = o.Call("a:get", 20)
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = o.Call("a:set")
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = o.Call("a:set", 40, 30)
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = o.Call("a:set", "text")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestMethodCall(t *testing.T) {
	obj := newTestObject()
	o, err := Expose(obj, nil, nil)
	require.NoError(t, err)

	_, err = o.Call("get_test", 45, 56)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{45, 56}}, obj.getCalls)

	_, err = o.Call("missing")
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

func TestGetAPI(t *testing.T) {
	o, err := Expose(newTestObject(), []string{"a"}, nil)
	require.NoError(t, err)

	api := o.API()
	assert.Equal(t, "testObject", api.Class)
	assert.ElementsMatch(t, []string{":api", "a:get", "a:set"}, api.Methods)

	v, err := o.Call(APIMethod)
	require.NoError(t, err)
	assert.Equal(t, api, v)
}

type counter struct {
	value  float64
	hidden string
	Label  string `control:"name"`
	Secret string `control:"-"`
}

func (c *counter) Value() float64 { return c.value }
func (c *counter) SetValue(v float64) error {
	if v < 0 {
		return errors.New("negative")
	}
	c.value = v
	return nil
}
func (c *counter) Count() int                    { return int(c.value) }
func (c *counter) Add(n float64) (float64, error) { c.value += n; return c.value, nil }
func (c *counter) Watch(context.Context)         {}
func (c *counter) Hidden() string                { return c.hidden }

func TestGetterSetterPairsAndTags(t *testing.T) {
	c := &counter{}
	o, err := Expose(c, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{":api", "add", "count", "hidden", "name:get", "name:set", "value:get", "value:set"},
		o.Methods())

	_, err = o.Call("value:set", 2.5)
	require.NoError(t, err)
	v, _ := o.Call("value:get")
	assert.Equal(t, 2.5, v)

	_, err = o.Call("value:set", -1)
	assert.EqualError(t, err, "negative")

	v, err = o.Call("add", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	v, _ = o.Call("count")
	assert.Equal(t, 4, v)

	_, err = Expose(c, []string{"watch"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"CycleDelay":      "cycle_delay",
		"A":               "a",
		"RPCHost":         "rpc_host",
		"IsStarted":       "is_started",
		"SetDeviceParams": "set_device_params",
		"Value2":          "value2",
	} {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestExposeParameters(t *testing.T) {
	var temp float64 = 24
	var mode bool
	var speed int

	p := device.NewParameters()
	require.NoError(t, device.Bind(p, "temperature", &temp, ""))
	require.NoError(t, device.Bind(p, "speed", &speed, ""))
	require.NoError(t, device.BindReadOnly(p, "mode", &mode, ""))

	o := ExposeParameters("LinkamT95", p)
	assert.Equal(t, []string{":api", "mode:get", "speed:get", "speed:set", "temperature:get", "temperature:set"},
		o.Methods())

	_, err := o.Call("temperature:set", 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, temp)

	_, err = o.Call("speed:set", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, speed)

	_, err = o.Call("speed:set", 1.5)
	assert.ErrorIs(t, err, device.ErrInvalidValue)

	v, _ := o.Call("temperature:get")
	assert.Equal(t, 30.0, v)
}

func TestEmptyCollection(t *testing.T) {
	c, err := NewCollection(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{":api", "get_objects"}, c.Methods())
	assert.Empty(t, c.Objects())

	v, err := c.Call(GetObjectsMethod)
	require.NoError(t, err)
	assert.Equal(t, c.Objects(), v)

	v, err = c.Call(APIMethod)
	require.NoError(t, err)
	assert.Equal(t, API{Class: CollectionClass, Methods: []string{":api", "get_objects"}}, v)
}

func TestCollectionAddObjects(t *testing.T) {
	c, err := NewCollection(nil)
	require.NoError(t, err)

	obj := newTestObject()
	require.NoError(t, c.Add("testObject", obj))
	assert.Equal(t, 9, c.Len())

	_, err = c.Call("testObject.get_test", 34, 55)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{34, 55}}, obj.getCalls)

	api, err := c.Call("testObject:api")
	require.NoError(t, err)
	assert.Equal(t, "testObject", api.(API).Class)

	exposed, err := Expose(obj, []string{"set_test", "get_test"}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Add("other", exposed))
	_, err = c.Call("other.get_test", 41, 11)
	require.NoError(t, err)
	assert.Len(t, obj.getCalls, 2)

	assert.Error(t, c.Add("bad.name", obj))

	c.Remove("other")
	assert.Equal(t, []string{"testObject"}, c.Objects())
}

func TestNestedCollections(t *testing.T) {
	obj := newTestObject()
	inner, err := NewCollection(map[string]any{"test": obj})
	require.NoError(t, err)
	outer, err := NewCollection(map[string]any{"container": inner})
	require.NoError(t, err)

	_, err = outer.Call("container.test.get_test", 454, 43)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{454, 43}}, obj.getCalls)

	assert.Contains(t, outer.Methods(), "container.test:api")
	assert.Contains(t, outer.Methods(), "container:api")
}

func TestDispatch(t *testing.T) {
	obj := newTestObject()
	c, err := NewCollection(map[string]any{"obj": obj})
	require.NoError(t, err)

	tests := []struct {
		name    string
		request string
		code    int
		result  string
	}{
		{"get", `{"jsonrpc":"2.0","method":"obj.a:get","id":1}`, 0, "10"},
		{"null params", `{"jsonrpc":"2.0","method":"obj.b:get","params":null,"id":2}`, 0, "20"},
		{"parse error", `{"jsonrpc":`, CodeParseError, ""},
		{"bad version", `{"jsonrpc":"1.0","method":"obj.a:get","id":3}`, CodeInvalidRequest, ""},
		{"unknown", `{"jsonrpc":"2.0","method":"obj.nope","id":4}`, CodeMethodNotFound, ""},
		{"params count", `{"jsonrpc":"2.0","method":"obj.a:get","params":[1],"id":5}`, CodeInvalidParams, ""},
		{"named params", `{"jsonrpc":"2.0","method":"obj.a:set","params":{"v":1},"id":6}`, CodeInvalidParams, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _, _ := dispatch(c, []byte(tt.request))
			require.NotNil(t, data)

			var resp Response
			require.NoError(t, json.Unmarshal(data, &resp))
			assert.Equal(t, "2.0", resp.JSONRPC)
			if tt.code == 0 {
				require.Nil(t, resp.Error)
				assert.JSONEq(t, tt.result, string(resp.Result))
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	data, method, rerr := dispatch(c, []byte(`{"jsonrpc":"2.0","method":"obj.a:set","params":[5]}`))
	assert.Nil(t, data, "notifications get no response")
	assert.Equal(t, "obj.a:set", method)
	assert.Nil(t, rerr)
	assert.Equal(t, 5, obj.A)
}

func TestServerValidatesHost(t *testing.T) {
	_, err := NewServer(nil, "some-invalid-host.invalid:10000")
	assert.ErrorIs(t, err, ErrInvalidHost)

	_, err = NewServer(nil, "no-port")
	assert.ErrorIs(t, err, ErrInvalidHost)

	_, err = NewServer(nil, "localhost:10000")
	assert.NoError(t, err)
}

func TestServerProcessRequiresStart(t *testing.T) {
	s, err := NewServer(nil, "127.0.0.1:0")
	require.NoError(t, err)
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Process(), ErrNotStarted)
}

func TestServerAndClient(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	obj := newTestObject()
	c, err := NewCollection(map[string]any{"obj": obj})
	require.NoError(t, err)

	s, err := NewServer(c, "127.0.0.1:0")
	require.NoError(t, err)
	mem := log.NewMemoryLogger(0)
	s.SetLogger(mem)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx), "second start is a no-op")
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Process(), "process does not block without requests")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = s.Process()
			}
		}
	}()

	client, err := Dial(ctx, s.Addr().String(), 2*time.Second)
	require.NoError(t, err)

	objects, err := client.Objects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"obj"}, objects)

	proxy, err := client.Object(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, proxy.Properties())
	assert.Equal(t, []string{"get_test", "set_test"}, proxy.Functions())
	assert.True(t, proxy.IsProperty("a"))
	assert.True(t, proxy.IsWritable("a"))
	assert.True(t, proxy.IsFunction("get_test"))

	require.NoError(t, proxy.Set(ctx, "a", 99))
	raw, err := proxy.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, "99", string(raw))

	_, err = proxy.Call(ctx, "set_test", 1, 2)
	require.NoError(t, err)

	_, err = proxy.Call(ctx, "missing")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeMethodNotFound, remote.Code)

	close(stop)
	<-done

	require.NoError(t, client.Close())
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	assert.Equal(t, 99, obj.A)
	assert.Equal(t, [][2]int{{1, 2}}, obj.setCalls)

	cat := log.CategoryMessage
	assert.NotEmpty(t, mem.Filter(log.Filter{Category: &cat, Command: "obj.a:set"}))
}

func TestClientTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := NewServer(&ExposedObject{}, "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	client, err := Dial(context.Background(), s.Addr().String(), 50*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	// Nobody calls Process, so the request is never answered.
	_, err = client.Call(context.Background(), ":api")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientDeadlineSurvivesStaleReplies(t *testing.T) {
	stop := make(chan struct{})
	var wg sync.WaitGroup

	// A server that never answers the current call but keeps sending
	// replies to an older one.
	srv := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		OnMessage: func(conn *transport.ServerConn, _ []byte) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(20 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if conn.Send([]byte(`{"jsonrpc":"2.0","result":null,"id":0}`)) != nil {
							return
						}
					}
				}
			}()
		},
	})
	require.NoError(t, srv.Start(context.Background()))
	defer func() {
		close(stop)
		wg.Wait()
		srv.Stop()
	}()

	client, err := Dial(context.Background(), srv.Addr().String(), 100*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	start := time.Now()
	_, err = client.Call(context.Background(), ":api")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}
