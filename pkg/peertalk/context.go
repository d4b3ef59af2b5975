// Package peertalk is a peer-to-peer messaging substrate: local-network
// discovery, reliable framed streams with priority send queues, and a
// single-threaded, explicitly-polled core intended for memory- and
// interrupt-constrained hosts (see SPEC_FULL.md). The application drives
// everything by calling Poll; nothing here spawns a goroutine of its own —
// that responsibility belongs entirely to the transport (see
// transport/nettransport).
package peertalk

import (
	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/definition"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

const op = "peertalk"

// Context is one local PeerTalk endpoint: its peer table, its transport
// capability handle, and the scheduling state the poll driver needs. All
// methods are single-threaded; callers must serialize calls to a Context
// themselves (spec §5).
type Context struct {
	cfg Config
	ops core.Ops
	log types.Logger

	manager *core.Manager

	discovering      bool
	lastAnnounceTick int64

	batch []MessageBatchEntry

	shutdown bool
}

// Init builds a Context from cfg and the transport capability set ops. It
// pre-allocates the full peer table (spec: "no dynamic memory growth at
// steady state"); nothing is connected or discovering yet.
func Init(cfg Config, ops core.Ops) (*Context, error) {
	if ops == nil {
		return nil, types.NewError(op+".Init", types.KindInvalidArg, "ops must not be nil")
	}
	if len(cfg.LocalName) > types.MaxNameLength {
		cfg.LocalName = cfg.LocalName[:types.MaxNameLength]
	}
	if cfg.Logger == nil {
		cfg.Logger = definition.NewDefaultLogger()
	}
	mgr := core.NewManager(core.ManagerConfig{
		MaxPeers:          cfg.MaxPeers,
		SendQueueCapacity: cfg.SendQueueCapacity,
		MessageMax:        cfg.MessageMax,
		AutoMergePeers:    cfg.AutoMergePeers,
		TransportPref:     cfg.TransportPreference,
	}, cfg.Logger)

	ctx := &Context{
		cfg:     cfg,
		ops:     ops,
		log:     cfg.Logger,
		manager: mgr,
	}
	ctx.log.Info("peertalk initialized", types.Fields{"local_name": cfg.LocalName, "max_peers": cfg.MaxPeers})
	return ctx, nil
}

// SetCallbacks installs (or replaces) the application notification table.
func (c *Context) SetCallbacks(cb Callbacks) { c.cfg.Callbacks = cb }

// Shutdown tears down every connection gracefully-as-possible and marks the
// Context unusable; Poll becomes a no-op afterward (spec §6 "shutdown").
func (c *Context) Shutdown() {
	if c.shutdown {
		return
	}
	c.manager.Each(func(p *core.Peer) {
		if p.State == types.Connected || p.State == types.Connecting {
			c.ops.Disconnect(p.Conn)
			c.cfg.Callbacks.fireDisconnected(p.Id, p.ConnectedTransport, types.ReasonShutdown)
		}
	})
	c.discovering = false
	c.shutdown = true
	c.log.Info("peertalk shutdown", types.Fields{})
}
