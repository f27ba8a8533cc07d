// Package rbp implements a small publish/subscribe protocol which mirrors
// resources, such as observable lists, between peers. A subscriber receives
// a snapshot of the resource followed by every committed update, in order.
package rbp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"listdelta/backend/config"
	"listdelta/backend/util/btree"
	"listdelta/backend/util/cleanup"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Errors returned by the peer.
var (
	ErrDuplicateResource = errors.New("resource is already published")
	ErrUnknownResource   = errors.New("resource is not published")
	ErrClosed            = errors.New("peer is closed")
	ErrQueueOverflow     = errors.New("subscriber queue overflow")
	ErrProtocol          = errors.New("protocol violation")
)

// RemoteError is an error reported by the other side of the connection.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Msg
}

const closeWriteTimeout = time.Second

var errUnsubscribed = errors.New("unsubscribed")

// Peer publishes resources to subscribers and subscribes to remote resources.
type Peer struct {
	log       *zap.Logger
	queueSize int

	mu        sync.Mutex
	resources *btree.Map[string, Resource]
	sessions  map[string]*session
	closed    bool

	clean cleanup.Stack
}

// NewPeer creates a new peer.
func NewPeer(cfg config.RBP, log *zap.Logger) *Peer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.RBP{}.Default().QueueSize
	}

	return &Peer{
		log:       log,
		queueSize: cfg.QueueSize,
		resources: btree.New[string, Resource](8, strings.Compare),
		sessions:  make(map[string]*session),
	}
}

// Publish makes a resource available to subscribers under name.
func (p *Peer) Publish(name string, r Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if !p.resources.SetIfAbsent(name, r) {
		return fmt.Errorf("%s: %w", name, ErrDuplicateResource)
	}

	p.log.Debug("ResourcePublished", zap.String("resource", name))
	return nil
}

// Unpublish removes a resource and disconnects its subscribers.
func (p *Peer) Unpublish(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.resources.Delete(name); !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownResource)
	}

	for _, s := range p.sessions {
		if s.resource == name {
			s.conn.Close()
		}
	}
	return nil
}

// Resources returns the names of the published resources in order.
func (p *Peer) Resources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, p.resources.Len())
	for name := range p.resources.Items() {
		out = append(out, name)
	}
	return out
}

// Serve accepts subscribers on lis until ctx is canceled, the listener fails, or the peer is closed.
// It returns after every connection it accepted is finished.
func (p *Peer) Serve(ctx context.Context, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()
	defer p.clean.PushFunc(func() error {
		cancel()
		return nil
	})()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		_ = lis.Close()
		return nil
	})

	g.Go(func() error {
		defer cancel()
		for {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("failed to accept subscriber: %w", err)
			}

			g.Go(func() error {
				p.serveConn(ctx, conn)
				return nil
			})
		}
	})

	return g.Wait()
}

type session struct {
	id       string
	resource string
	conn     net.Conn

	queue        chan []byte
	overflow     chan struct{}
	overflowOnce sync.Once
}

// enqueue never blocks. A subscriber which can't keep up is disconnected,
// which also unblocks a pending write.
func (s *session) enqueue(data []byte) {
	select {
	case s.queue <- data:
	default:
		s.overflowOnce.Do(func() {
			mOverflowsTotal.Inc()
			close(s.overflow)
			s.conn.Close()
		})
	}
}

func (p *Peer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	c := newCodec(conn)
	m, err := c.read()
	if err != nil {
		p.log.Debug("SubscriberHandshakeFailed", zap.Error(err))
		return
	}
	if m.Type != MsgSubscribe {
		_ = c.write(Message{Type: MsgError, Error: fmt.Sprintf("expected %s message, got %s", MsgSubscribe, m.Type)})
		return
	}

	p.mu.Lock()
	r, ok := p.resources.Get(m.Resource)
	p.mu.Unlock()
	if !ok {
		_ = c.write(Message{Type: MsgError, Resource: m.Resource, Error: ErrUnknownResource.Error()})
		return
	}

	s := &session{
		id:       uuid.NewString(),
		resource: m.Resource,
		conn:     conn,
		queue:    make(chan []byte, p.queueSize),
		overflow: make(chan struct{}),
	}

	snapshot, detach, err := r.Attach(ctx, s.enqueue)
	if err != nil {
		_ = c.write(Message{Type: MsgError, Resource: m.Resource, Error: err.Error()})
		return
	}
	defer detach()

	if !p.addSession(s) {
		return
	}
	defer p.removeSession(s)

	log := p.log.With(zap.String("resource", s.resource), zap.String("session", s.id))
	log.Debug("PeerSubscribed")

	if err := c.write(Message{Type: MsgSnapshot, Resource: s.resource, Session: s.id, Payload: snapshot}); err != nil {
		log.Debug("PeerUnsubscribed", zap.Error(err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			m, err := c.read()
			if err != nil {
				return err
			}
			if m.Type == MsgUnsubscribe {
				return errUnsubscribed
			}
		}
	})

	g.Go(func() error {
		var seq uint64
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-s.overflow:
				return ErrQueueOverflow
			case data := <-s.queue:
				seq++
				if err := c.write(Message{Type: MsgUpdate, Resource: s.resource, Session: s.id, Seq: seq, Payload: data}); err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})

	err = g.Wait()
	if errors.Is(err, errUnsubscribed) {
		err = nil
	}
	log.Debug("PeerUnsubscribed", zap.Error(err))
}

func (p *Peer) addSession(s *session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.resources.Get(s.resource); !ok {
		return false
	}
	p.sessions[s.id] = s
	mSubscribers.Inc()
	return true
}

func (p *Peer) removeSession(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, s.id)
	mSubscribers.Dec()
}

// Subscribe mirrors the remote resource name into r over conn. It returns once
// the snapshot is applied. The subscription owns conn.
func (p *Peer) Subscribe(ctx context.Context, conn net.Conn, name string, r Resource) (*Subscription, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		conn.Close()
		return nil, ErrClosed
	}

	c := newCodec(conn)

	type result struct {
		m   Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		if err := c.write(Message{Type: MsgSubscribe, Resource: name}); err != nil {
			ch <- result{err: err}
			return
		}
		m, err := c.read()
		ch <- result{m: m, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		conn.Close()
		<-ch
		return nil, ctx.Err()
	case res = <-ch:
	}

	if err := handshakeError(res.m, res.err); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}

	if err := r.Apply(MsgSnapshot, res.m.Payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply snapshot of %s: %w", name, err)
	}

	sub := &Subscription{
		Resource: name,
		Session:  res.m.Session,
		log:      p.log.With(zap.String("resource", name), zap.String("session", res.m.Session)),
		conn:     conn,
		c:        c,
		done:     make(chan struct{}),
	}
	// The closer is dropped when the subscription finishes on its own.
	remove := make(chan func(), 1)
	go func() {
		sub.loop(r)
		(<-remove)()
	}()
	// Failures of the subscription itself are reported by Err.
	remove <- p.clean.PushFunc(func() error {
		_ = sub.Close()
		return nil
	})

	return sub, nil
}

func handshakeError(m Message, err error) error {
	if err != nil {
		return err
	}
	switch m.Type {
	case MsgSnapshot:
		return nil
	case MsgError:
		return &RemoteError{Msg: m.Error}
	default:
		return fmt.Errorf("expected %s message, got %s: %w", MsgSnapshot, m.Type, ErrProtocol)
	}
}

// Close disconnects every subscriber and subscription, and stops serving.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	var err error
	for _, s := range p.sessions {
		err = multierr.Append(err, ignoreClosed(s.conn.Close()))
	}
	p.resources.Clear()
	p.mu.Unlock()

	return multierr.Append(err, p.clean.Close())
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Subscription is a live mirror of a remote resource.
type Subscription struct {
	Resource string
	Session  string

	log  *zap.Logger
	conn net.Conn
	c    *codec

	closeOnce sync.Once
	closing   bool
	mu        sync.Mutex
	done      chan struct{}
	err       error
}

func (s *Subscription) loop(r Resource) {
	err := s.receive(r)

	s.mu.Lock()
	if s.closing {
		err = nil
	}
	s.err = err
	s.mu.Unlock()

	s.conn.Close()
	s.log.Debug("SubscriptionFinished", zap.Error(err))
	close(s.done)
}

func (s *Subscription) receive(r Resource) error {
	var seq uint64
	for {
		m, err := s.c.read()
		if err != nil {
			return err
		}

		switch m.Type {
		case MsgUpdate:
			if m.Seq != seq+1 {
				return fmt.Errorf("update %d after %d: %w", m.Seq, seq, ErrProtocol)
			}
			seq = m.Seq
			if err := r.Apply(MsgUpdate, m.Payload); err != nil {
				return fmt.Errorf("failed to apply update %d: %w", m.Seq, err)
			}
		case MsgError:
			return &RemoteError{Msg: m.Error}
		default:
			return fmt.Errorf("unexpected %s message: %w", m.Type, ErrProtocol)
		}
	}
}

// Done is closed when the subscription is finished.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription finished. It's nil while the subscription
// is active and after a regular Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes and waits for the subscription to finish.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		_ = s.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
		_ = s.c.write(Message{Type: MsgUnsubscribe, Resource: s.Resource, Session: s.Session})
		s.conn.Close()
	})
	<-s.done
	return s.Err()
}
