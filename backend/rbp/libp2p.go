package rbp

import (
	"context"
	"fmt"
	"net"

	gostream "github.com/libp2p/go-libp2p-gostream"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// Listen accepts protocol streams of the libp2p host as net.Conn.
func Listen(h host.Host, pid protocol.ID) (net.Listener, error) {
	lis, err := gostream.Listen(h, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s: %w", pid, err)
	}
	return lis, nil
}

// Dial opens a protocol stream to a remote peer.
func Dial(ctx context.Context, h host.Host, remote peer.ID, pid protocol.ID) (net.Conn, error) {
	conn, err := gostream.Dial(ctx, h, remote, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", remote, err)
	}
	return conn, nil
}
