// Program listdelta-peer keeps an observable list of strings, edited with commands
// from stdin, and replicates it to and from other peers over libp2p.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"listdelta/backend/config"
	"listdelta/backend/event"
	"listdelta/backend/history"
	"listdelta/backend/list"
	"listdelta/backend/logging"
	"listdelta/backend/rbp"

	"github.com/burdiyan/go/mainutil"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	"github.com/peterbourgon/ff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	const envVarPrefix = "LISTDELTA"

	mainutil.Run(func() error {
		ctx := mainutil.TrapSignals()

		fs := flag.NewFlagSet("listdelta-peer", flag.ExitOnError)

		cfg := config.Default()
		cfg.BindFlags(fs)

		err := ff.Parse(fs, slices.Clone(os.Args[1:]), ff.WithEnvVarPrefix(envVarPrefix))
		if err != nil {
			if errors.Is(err, ff.ErrHelp) {
				fs.Usage()
				return nil
			}

			return err
		}

		err = run(ctx, cfg)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.New("listdelta/peer", cfg.LogLevel)

	h, err := libp2p.New(libp2p.ListenAddrs(cfg.RBP.ListenAddrs...))
	if err != nil {
		return fmt.Errorf("failed to start libp2p host: %w", err)
	}
	defer h.Close()

	log.Info("PeerStarted", zap.Stringer("id", h.ID()), zap.Any("addrs", h.Addrs()))

	l := list.New[string](cfg.Assembler, logging.New("listdelta/list", cfg.LogLevel))
	hist := history.NewManager(cfg.Assembler.HistoryLimit)
	if err := hist.Attach(l.Tx()); err != nil {
		return err
	}
	defer hist.Detach()

	p := rbp.NewPeer(cfg.RBP, logging.New("listdelta/rbp", cfg.LogLevel))
	defer p.Close()

	if err := p.Publish(cfg.RBP.Resource, rbp.NewListResource(l)); err != nil {
		return err
	}

	pid := protocol.ID(cfg.RBP.ProtocolID)
	lis, err := rbp.Listen(h, pid)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Serve(ctx, lis)
	})

	if cfg.RBP.Subscribe != "" {
		if err := subscribe(ctx, h, p, cfg.RBP, log); err != nil {
			return err
		}
	}

	cmds := newCommander(l, hist)
	g.Go(func() error {
		<-ctx.Done()
		return cmds.close()
	})
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			out, err := cmds.run(sc.Text())
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			if out != "" {
				fmt.Println(out)
			}
		}
	}()

	return g.Wait()
}

func subscribe(ctx context.Context, h host.Host, p *rbp.Peer, cfg config.RBP, log *zap.Logger) error {
	addr, err := multiaddr.NewMultiaddr(cfg.Subscribe)
	if err != nil {
		return fmt.Errorf("bad subscribe address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("bad subscribe address: %w", err)
	}

	if err := h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", info.ID, err)
	}

	conn, err := rbp.Dial(ctx, h, info.ID, protocol.ID(cfg.ProtocolID))
	if err != nil {
		return err
	}

	// Listeners are registered before updates start arriving from the subscription.
	mirror := list.New[string](config.Assembler{}.Default(), nil)
	if _, err := mirror.AddBufferedListener(func(ev *event.Event[string]) error {
		log.Info("MirrorChanged", zap.Stringer("event", ev), zap.Strings("values", mirror.Values()))
		return nil
	}); err != nil {
		conn.Close()
		return err
	}

	if _, err := p.Subscribe(ctx, conn, cfg.Resource, rbp.NewListResource(mirror)); err != nil {
		return err
	}
	return nil
}
