package conn

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	in     chan interface{}
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan interface{}, 16), closed: make(chan struct{})}
}

func (c *fakeChannel) Receive() (interface{}, error) {
	select {
	case v := <-c.in:
		return v, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeChannel) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	hosts    []string
	failures int
	refuse   string
}

func (d *fakeDialer) Dial(ctx context.Context, cfg config.ControllerConfig) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosts = append(d.hosts, cfg.Host)
	if d.failures > 0 {
		d.failures--
		return nil, fmt.Errorf("connection refused")
	}
	if d.refuse != "" && cfg.Host == d.refuse {
		return nil, fmt.Errorf("no such host %s", cfg.Host)
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

func (d *fakeDialer) channel(i int) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[i]
}

func (d *fakeDialer) dialedHosts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.hosts...)
}

// recorder collects handler invocations in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []tree.Map
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) messages() []tree.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tree.Map(nil), r.msgs...)
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		Message: func(m tree.Map) {
			r.mu.Lock()
			r.msgs = append(r.msgs, m)
			r.mu.Unlock()
			r.add("message")
		},
		Update:      func() { r.add("update") },
		Reload:      func() { r.add("reload") },
		HostChanged: func(host string) { r.add("host:" + host) },
	}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testConfig() config.ControllerConfig {
	return config.ControllerConfig{
		Host:              "bbctrl.local",
		WebsocketPath:     "/websocket",
		APIPath:           "/api",
		ReconnectInterval: 5 * time.Millisecond,
	}
}

func startSupervisor(t *testing.T, d *fakeDialer, rec *recorder) *Supervisor {
	t.Helper()
	s := NewSupervisor(testConfig(), d, nil, rec.handlers(), testLogger())
	s.OnStatus(func(st Status) { rec.add("local:" + string(st)) })
	s.OnBroadcast(func(st Status) { rec.add("broadcast:" + string(st)) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestSupervisorInitialStatus(t *testing.T) {
	s := NewSupervisor(testConfig(), &fakeDialer{}, nil, Handlers{}, testLogger())
	assert.Equal(t, StatusConnecting, s.Status())
	assert.False(t, s.ReloadOnConnect())
	assert.False(t, s.Send("$x"), "send before connect must be a no-op")
}

func TestSupervisorFirstConnectUpdates(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return len(rec.list()) >= 3 }, "connect events")
	assert.Equal(t, []string{"local:connected", "broadcast:connected", "update"}, rec.list())
	assert.Equal(t, StatusConnected, s.Status())
}

func TestSupervisorReloadAfterDrop(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return d.count() == 1 }, "first connect")
	testutil.Eventually(t, func() bool { return s.Status() == StatusConnected }, "connected")
	d.channel(0).Close()

	testutil.Eventually(t, func() bool { return d.count() == 2 }, "reconnect")
	testutil.Eventually(t, func() bool { return len(rec.list()) >= 8 }, "reconnect events")

	assert.Equal(t, []string{
		"local:connected", "broadcast:connected", "update",
		"local:disconnected", "broadcast:disconnected",
		"local:connected", "broadcast:connected", "reload",
	}, rec.list())
	assert.True(t, s.ReloadOnConnect())

	// The flag is sticky: later drops reload too.
	d.channel(1).Close()
	testutil.Eventually(t, func() bool { return len(rec.list()) >= 13 }, "second reconnect")
	assert.Equal(t, "reload", rec.list()[12])
}

func TestSupervisorRetriesFailedDials(t *testing.T) {
	d := &fakeDialer{failures: 3}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return s.Status() == StatusConnected }, "eventually connected")
	assert.Len(t, d.dialedHosts(), 4)
	testutil.Eventually(t, func() bool { return len(rec.list()) >= 3 }, "connect events")
	assert.Equal(t, "update", rec.list()[2])
}

func TestSupervisorIgnoresNonObjects(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return s.Status() == StatusConnected }, "connected")
	ch := d.channel(0)
	ch.in <- []interface{}{1.0, 2.0}
	ch.in <- "hello"
	ch.in <- 42.0
	ch.in <- map[string]interface{}{"xx": "READY"}

	testutil.Eventually(t, func() bool { return len(rec.messages()) == 1 }, "object delivered")
	got, ok := tree.String(rec.messages()[0], "xx")
	require.True(t, ok)
	assert.Equal(t, "READY", got)
}

func TestSupervisorSendGatedOnConnection(t *testing.T) {
	d := &fakeDialer{failures: 1 << 30}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return len(d.dialedHosts()) >= 2 }, "dial attempts")
	assert.False(t, s.Send("G0 X1"))
	assert.Equal(t, StatusConnecting, s.Status())
}

func TestSupervisorSendWhenConnected(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return s.Status() == StatusConnected }, "connected")
	assert.True(t, s.Send("G0 X1"))
	assert.Equal(t, []string{"G0 X1"}, d.channel(0).Sent())
}

func TestSupervisorFollowsAnnouncedHostname(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return s.Status() == StatusConnected }, "connected")
	s.AnnounceHostname("shop-cnc")
	d.channel(0).Close()

	testutil.Eventually(t, func() bool {
		for _, e := range rec.list() {
			if e == "reload" {
				return true
			}
		}
		return false
	}, "reload on new host")

	hosts := d.dialedHosts()
	assert.Equal(t, "shop-cnc", hosts[len(hosts)-1])
	assert.Equal(t, "shop-cnc", s.Host())
	assert.Contains(t, rec.list(), "host:shop-cnc")

	// Host change is reported before the connection is announced.
	events := rec.list()
	var hostIdx, connIdx int
	for i, e := range events {
		if e == "host:shop-cnc" {
			hostIdx = i
		}
		if e == "local:connected" {
			connIdx = i
		}
	}
	assert.Less(t, hostIdx, connIdx)
}

func TestSupervisorRedirectsWhenOldHostIsGone(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	s := startSupervisor(t, d, rec)

	testutil.Eventually(t, func() bool { return s.Status() == StatusConnected }, "connected")
	s.AnnounceHostname("shop-cnc")
	d.mu.Lock()
	d.refuse = "bbctrl.local"
	before := len(d.hosts)
	d.mu.Unlock()
	d.channel(0).Close()

	testutil.Eventually(t, func() bool {
		return s.Status() == StatusConnected && d.count() == 2
	}, "reconnected to the announced host")

	assert.Equal(t, "shop-cnc", s.Host())
	assert.Equal(t, []string{"shop-cnc"}, d.dialedHosts()[before:])
	assert.Contains(t, rec.list(), "reload")
}
