// Package config provides global configuration.
package config

import (
	"flag"
	"strings"

	"github.com/multiformats/go-multiaddr"
)

// Base configuration.
type Base struct {
	LogLevel string
}

func (c Base) Default() Base {
	return Base{
		LogLevel: "info",
	}
}

// BindFlags binds the flags to the given FlagSet.
func (c *Base) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log verbosity debug | info | warning | error")
}

// Config for the peer binary. When adding or removing fields,
// adjust the Default() and BindFlags() accordingly.
type Config struct {
	Base

	Assembler Assembler
	RBP       RBP
}

// BindFlags configures the given FlagSet with the existing values from the given Config
// and prepares the FlagSet to parse the flags into the Config.
//
// This function is assumed to be called after some default values were set on the given config.
// These values will be used as default values in flags.
// See Default() for the default config values.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	c.Base.BindFlags(fs)
	c.Assembler.BindFlags(fs)
	c.RBP.BindFlags(fs)
}

// Default creates a new default config.
func Default() Config {
	return Config{
		Base:      Base{}.Default(),
		Assembler: Assembler{}.Default(),
		RBP:       RBP{}.Default(),
	}
}

// Assembler configures how list changes are accumulated.
type Assembler struct {
	// AllowContradictions lets a change erase a standing change in the same transaction
	// (e.g. deleting a just inserted element) instead of failing.
	AllowContradictions bool
	// DynamicSizing makes the delta tree grow on demand instead of being sized upfront.
	DynamicSizing bool
	// Rollback enables undo capture, which is required for rolling back transactions.
	Rollback bool
	// HistoryLimit is the maximum number of undoable edits kept by the history.
	HistoryLimit int
}

func (c Assembler) Default() Assembler {
	return Assembler{
		DynamicSizing: true,
		Rollback:      true,
		HistoryLimit:  1000,
	}
}

// BindFlags binds the flags to the given FlagSet.
func (c *Assembler) BindFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.AllowContradictions, "assembler.allow-contradictions", c.AllowContradictions, "Allow changes that erase standing changes of the same transaction")
	fs.BoolVar(&c.DynamicSizing, "assembler.dynamic-sizing", c.DynamicSizing, "Grow the delta tree on demand")
	fs.BoolVar(&c.Rollback, "assembler.rollback", c.Rollback, "Capture inverse edits to support transaction rollback")
	fs.IntVar(&c.HistoryLimit, "assembler.history-limit", c.HistoryLimit, "Maximum number of undoable edits to keep")
}

// DefaultProtocolID is the libp2p protocol used for list replication.
const DefaultProtocolID = "/listdelta/rbp/0.1.0"

// RBP configures the list replication peer.
type RBP struct {
	ProtocolID  string
	ListenAddrs []multiaddr.Multiaddr
	QueueSize   int
	// Subscribe is a full p2p multiaddr of a peer to subscribe to. Empty means publish only.
	Subscribe string
	Resource  string
}

func (c RBP) Default() RBP {
	return RBP{
		ProtocolID: DefaultProtocolID,
		ListenAddrs: []multiaddr.Multiaddr{
			multiaddr.StringCast("/ip4/0.0.0.0/tcp/55100"),
		},
		QueueSize: 64,
		Resource:  "default",
	}
}

// BindFlags binds the flags to the given FlagSet.
func (c *RBP) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ProtocolID, "rbp.protocol-id", c.ProtocolID, "Libp2p protocol ID for list replication")
	fs.Var(newAddrsFlag(c.ListenAddrs, &c.ListenAddrs), "rbp.listen-addrs", "Addresses to be listen at (comma separated multiaddresses format)")
	fs.IntVar(&c.QueueSize, "rbp.queue-size", c.QueueSize, "Maximum number of pending updates per subscriber before it's disconnected")
	fs.StringVar(&c.Subscribe, "rbp.subscribe", c.Subscribe, "Multiaddr of a peer (including /p2p/<id>) to subscribe to")
	fs.StringVar(&c.Resource, "rbp.resource", c.Resource, "Name of the list resource to publish or subscribe to")
}

type addrsFlag []multiaddr.Multiaddr

func (al *addrsFlag) String() string {
	if al == nil {
		return ""
	}

	parts := make([]string, len(*al))
	for i, addr := range *al {
		parts[i] = addr.String()
	}

	return strings.Join(parts, ",")
}

func (al *addrsFlag) Set(s string) error {
	ss := strings.Split(s, ",")
	out := make([]multiaddr.Multiaddr, len(ss))

	for i, as := range ss {
		addr, err := multiaddr.NewMultiaddr(as)
		if err != nil {
			return err
		}
		out[i] = addr
	}

	*al = out
	return nil
}

func newAddrsFlag(val []multiaddr.Multiaddr, p *[]multiaddr.Multiaddr) flag.Value {
	*p = val
	return (*addrsFlag)(p)
}
