package rbp

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"listdelta/backend/config"
	"listdelta/backend/list"

	"github.com/stretchr/testify/require"
)

// pipeListener hands out in-memory connections.
type pipeListener struct {
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr{} }

func (l *pipeListener) Dial() (net.Conn, error) {
	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

type fixture struct {
	pub  *Peer
	sub  *Peer
	lis  *pipeListener
	src  *list.List[string]
	done chan error
}

func newFixture(t *testing.T, cfg config.RBP, initial ...string) *fixture {
	t.Helper()

	f := &fixture{
		pub:  NewPeer(cfg, nil),
		sub:  NewPeer(cfg, nil),
		lis:  newPipeListener(),
		src:  list.New[string](config.Assembler{}.Default(), nil, initial...),
		done: make(chan error, 1),
	}
	require.NoError(t, f.pub.Publish("todo", NewListResource(f.src)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { f.done <- f.pub.Serve(ctx, f.lis) }()

	t.Cleanup(func() {
		require.NoError(t, f.sub.Close())
		cancel()
		require.NoError(t, <-f.done)
		require.NoError(t, f.pub.Close())
	})

	return f
}

func (f *fixture) subscribe(t *testing.T, name string) (*list.List[string], *Subscription, error) {
	t.Helper()

	conn, err := f.lis.Dial()
	require.NoError(t, err)

	dst := list.New[string](config.Assembler{}.Default(), nil)
	sub, err := f.sub.Subscribe(context.Background(), conn, name, NewListResource(dst))
	return dst, sub, err
}

func values(l *list.List[string]) []string {
	l.RLock()
	defer l.RUnlock()
	return l.Values()
}

func (f *fixture) sessions() int {
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	return len(f.pub.sessions)
}

func TestReplication(t *testing.T) {
	f := newFixture(t, config.RBP{}.Default(), "a", "b")

	dst, sub, err := f.subscribe(t, "todo")
	require.NoError(t, err)
	require.NotEmpty(t, sub.Session)
	require.Equal(t, []string{"a", "b"}, values(dst), "snapshot must be applied before subscribe returns")

	synced := func() bool { return strings.Join(values(dst), ",") == strings.Join(values(f.src), ",") }

	f.src.Lock()
	require.NoError(t, f.src.Begin(true))
	require.NoError(t, f.src.Add("c"))
	_, err = f.src.Set(0, "A")
	require.NoError(t, err)
	_, err = f.src.Delete(1, 1)
	require.NoError(t, err)
	require.NoError(t, f.src.Commit())
	f.src.Unlock()

	require.Eventually(t, synced, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"A", "c"}, values(dst))

	f.src.Lock()
	require.NoError(t, f.src.Insert(0, "z"))
	require.NoError(t, f.src.Sort(strings.Compare))
	f.src.Unlock()

	require.Eventually(t, synced, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"A", "c", "z"}, values(dst))

	t.Run("should detach on unsubscribe", func(t *testing.T) {
		require.Equal(t, 1, f.sessions())
		require.NoError(t, sub.Close())
		require.Eventually(t, func() bool { return f.sessions() == 0 }, 5*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool { return f.sub.clean.Len() == 0 }, 5*time.Second, 10*time.Millisecond)

		f.src.Lock()
		require.NoError(t, f.src.Add("late"))
		f.src.Unlock()
		require.Equal(t, []string{"A", "c", "z"}, values(dst))
	})
}

func TestSubscribeDuringTransaction(t *testing.T) {
	f := newFixture(t, config.RBP{}.Default(), "a", "b")

	f.src.Lock()
	require.NoError(t, f.src.Begin(true))
	require.NoError(t, f.src.Add("c"))
	f.src.Unlock()

	conn, err := f.lis.Dial()
	require.NoError(t, err)

	dst := list.New[string](config.Assembler{}.Default(), nil)
	done := make(chan error, 1)
	go func() {
		_, err := f.sub.Subscribe(context.Background(), conn, "todo", NewListResource(dst))
		done <- err
	}()

	require.Never(t, func() bool { return len(done) > 0 }, 100*time.Millisecond, 10*time.Millisecond,
		"snapshot must wait for the open transaction")

	f.src.Lock()
	require.NoError(t, f.src.Commit())
	f.src.Unlock()

	require.NoError(t, <-done)
	require.Equal(t, []string{"a", "b", "c"}, values(dst))

	f.src.Lock()
	require.NoError(t, f.src.Add("d"))
	f.src.Unlock()

	require.Eventually(t, func() bool { return len(values(dst)) >= 4 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"a", "b", "c", "d"}, values(dst), "committed changes must not be applied twice")
}

func TestSubscribeUnknown(t *testing.T) {
	f := newFixture(t, config.RBP{}.Default())

	_, _, err := f.subscribe(t, "missing")
	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	require.Contains(t, rerr.Msg, ErrUnknownResource.Error())
}

func TestUnpublish(t *testing.T) {
	f := newFixture(t, config.RBP{}.Default(), "a")

	_, sub, err := f.subscribe(t, "todo")
	require.NoError(t, err)

	require.NoError(t, f.pub.Unpublish("todo"))
	require.ErrorIs(t, f.pub.Unpublish("todo"), ErrUnknownResource)

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription must finish when the resource is unpublished")
	}
	require.Error(t, sub.Err())
	require.Eventually(t, func() bool { return f.sub.clean.Len() == 0 }, 5*time.Second, 10*time.Millisecond,
		"finished subscriptions must not be kept for teardown")
}

func TestQueueOverflow(t *testing.T) {
	cfg := config.RBP{}.Default()
	cfg.QueueSize = 1
	f := newFixture(t, cfg)

	conn, err := f.lis.Dial()
	require.NoError(t, err)
	defer conn.Close()

	c := newCodec(conn)
	require.NoError(t, c.write(Message{Type: MsgSubscribe, Resource: "todo"}))
	m, err := c.read()
	require.NoError(t, err)
	require.Equal(t, MsgSnapshot, m.Type)

	// Nobody reads the updates, so the queue fills up.
	for i := range 5 {
		f.src.Lock()
		require.NoError(t, f.src.Add(strings.Repeat("x", i+1)))
		f.src.Unlock()
	}

	require.Eventually(t, func() bool { return f.sessions() == 0 }, 5*time.Second, 10*time.Millisecond)

	var readErr error
	for range 10 {
		if _, readErr = c.read(); readErr != nil {
			break
		}
	}
	require.Error(t, readErr, "overflowed subscriber must be disconnected")
}

func TestPublish(t *testing.T) {
	p := NewPeer(config.RBP{}.Default(), nil)
	l := list.New[int](config.Assembler{}.Default(), nil)

	require.NoError(t, p.Publish("b", NewListResource(l)))
	require.NoError(t, p.Publish("a", NewListResource(l)))
	require.ErrorIs(t, p.Publish("a", NewListResource(l)), ErrDuplicateResource)
	require.Equal(t, []string{"a", "b"}, p.Resources())

	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Publish("c", NewListResource(l)), ErrClosed)
	require.ErrorIs(t, p.Serve(context.Background(), newPipeListener()), ErrClosed)
}
