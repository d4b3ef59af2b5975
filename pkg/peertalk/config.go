package peertalk

import "github.com/jabolina/peertalk/pkg/peertalk/types"

// Config is passed to Init (spec §6). It carries everything the core needs
// and nothing it doesn't: no file-format parsing lives here (Non-goal —
// "configuration file parsing ... out of scope"), the application is
// expected to build this struct however it likes (flags, env, a config
// file it parses itself) and hand it to Init.
type Config struct {
	// LocalName identifies this host in discovery announces (≤ 31 code units).
	LocalName string

	// MaxPeers bounds the peer table (pre-allocated at Init).
	MaxPeers int

	// SendQueueCapacity is the per-peer send-queue slot count (spec:
	// "typical 16 slots"), split evenly across the four priorities.
	SendQueueCapacity int

	// MessageMax bounds a single frame's payload (default 4096).
	MessageMax int

	// DiscoveryPort is the well-known UDP broadcast port for IP discovery.
	DiscoveryPort uint16

	// TCPPort / UDPPort are the ports this host listens on for the
	// corresponding transports. 0 disables that transport's listener.
	TCPPort uint16
	UDPPort uint16

	// Transports is the set of transport kinds enabled for this host
	// (default TCP+UDP per spec §6).
	Transports types.TransportMask

	// TransportPreference is the global fallback used when a peer doesn't
	// override it (spec §4.1; default PreferTcp).
	TransportPreference types.TransportPreference

	// NBPObject / NBPZone default the AppleTalk NBP entity this host
	// registers as self:PeerTalk@zone (spec §4.4).
	NBPObject string
	NBPZone   string

	// AutoMergePeers enables name-based discovery dedup (spec §4.1).
	AutoMergePeers bool

	// DiscoveryFreshnessTicks overrides the 30s default discovery record
	// timeout (spec §5), expressed in the same tick units as Ops.NowTicks.
	DiscoveryFreshnessTicks int64
	ConnectTimeoutTicks     int64
	GracefulCloseTicks      int64

	// Logger is the structured sink every poll-driver event flows through
	// (spec §5: "Callbacks never write to the sink directly"). Defaults to
	// definition.NewDefaultLogger() if nil.
	Logger types.Logger

	Callbacks Callbacks
}

// DefaultConfig returns a Config with the spec's documented defaults
// filled in; callers typically start here and override fields.
func DefaultConfig(localName string) Config {
	return Config{
		LocalName:               localName,
		MaxPeers:                64,
		SendQueueCapacity:       16,
		MessageMax:              types.MessageMax,
		DiscoveryPort:           7350,
		TCPPort:                 0,
		UDPPort:                 0,
		Transports:              types.TransportMask(0).With(types.TransportTCP).With(types.TransportUDP),
		TransportPreference:     types.PreferTcp,
		NBPZone:                 "*",
		AutoMergePeers:          true,
		DiscoveryFreshnessTicks: 30_000,
		ConnectTimeoutTicks:     30_000,
		GracefulCloseTicks:      30_000,
	}
}
