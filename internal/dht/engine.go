package dht

import (
	"context"
	"crypto/sha1"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jroosing/pkarr/internal/keys"
	"github.com/jroosing/pkarr/internal/pkarr"
)

// Engine defaults, caller-overridable per lookup or via Config.
const (
	DefaultMaxAttempts     = 100
	DefaultLookupTimeout   = 30 * time.Second
	DefaultQueryTimeout    = 5 * time.Second
	DefaultCacheMaxEntries = 1000
)

// PacketFetcher retrieves and verifies a signed packet from a peer
// discovered through get_peers. The peer-wire protocol is deliberately
// outside this package; implementations decide how to talk to the peer and
// must only return packets that pass signature verification.
type PacketFetcher interface {
	Fetch(ctx context.Context, peer netip.AddrPort, target keys.PublicKey) (*pkarr.SignedPacket, error)
}

// Config configures an Engine. Zero values fall back to the defaults above.
type Config struct {
	// BootstrapNodes seed every lookup's frontier ("host:port", names allowed).
	BootstrapNodes []string

	// MinTTL and MaxTTL clamp the cache lifetime of resolved packets.
	MinTTL time.Duration
	MaxTTL time.Duration

	// QueryTimeout bounds each per-node request.
	QueryTimeout time.Duration

	// CacheMaxEntries bounds the result cache.
	CacheMaxEntries int

	// Fetcher converts discovered peers into verified packets. Without one
	// peer hits are dead ends and lookups can only end in ErrNotFound.
	Fetcher PacketFetcher

	// Keypair identifies this node on the DHT; a random one is generated
	// when nil.
	Keypair *keys.Keypair

	Logger *slog.Logger
	Clock  clock.Clock
}

// Engine drives DHT lookups. It owns two pieces of process-wide mutable
// state shared by concurrent lookups: the known-nodes set and the result
// cache. Both serialize mutations internally; per-lookup traversal state
// lives on the stack of each Lookup call.
type Engine struct {
	nodeID       [sha1.Size]byte
	bootstrap    []string
	minTTL       time.Duration
	maxTTL       time.Duration
	queryTimeout time.Duration
	fetcher      PacketFetcher
	logger       *slog.Logger
	clk          clock.Clock

	cache *TTLCache[string, *pkarr.SignedPacket]

	mu    sync.Mutex
	known map[string]struct{}
}

// NewEngine creates a lookup engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	kp := cfg.Keypair
	if kp == nil {
		var err error
		if kp, err = keys.GenerateKeypair(); err != nil {
			return nil, err
		}
	}
	if cfg.MinTTL <= 0 {
		cfg.MinTTL = 300 * time.Second
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 86400 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	e := &Engine{
		nodeID:       kp.PublicKey().InfoHash(),
		bootstrap:    append([]string(nil), cfg.BootstrapNodes...),
		minTTL:       cfg.MinTTL,
		maxTTL:       cfg.MaxTTL,
		queryTimeout: cfg.QueryTimeout,
		fetcher:      cfg.Fetcher,
		logger:       cfg.Logger,
		clk:          cfg.Clock,
		cache:        NewTTLCache[string, *pkarr.SignedPacket](cfg.CacheMaxEntries, cfg.Clock),
		known:        make(map[string]struct{}),
	}
	for _, n := range e.bootstrap {
		e.known[n] = struct{}{}
	}
	return e, nil
}

// Lookup resolves target to a verified SignedPacket.
//
// The cache is probed first; on a hit no network traffic occurs. On a miss
// the engine walks a frontier seeded from the bootstrap set, querying one
// node at a time with get_peers until a peer yields a verified packet or
// the frontier, attempt budget or deadline runs out. Newly discovered
// nodes are tried before the remaining seeds, descending toward the target
// instead of fanning out across bootstrap routers.
//
// A failure while contacting one node is logged and treated as a dead end
// for that node only. The only negative outcome visible to the caller is
// ErrNotFound; the three exhaustion causes are distinguished in logs only.
func (e *Engine) Lookup(ctx context.Context, target keys.PublicKey, maxAttempts int, timeout time.Duration) (*pkarr.SignedPacket, error) {
	key := target.String()

	if sp, ok := e.cache.Get(key); ok {
		e.logger.Debug("have fresh signed packet in cache",
			"key", key,
			"expires_in", sp.ExpiresIn(e.minTTL, e.maxTTL),
		)
		return sp, nil
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}

	front := newFrontier(e.bootstrap)
	infoHash := target.InfoHash()
	start := e.clk.Now()
	deadline := start.Add(timeout)
	attempts := 0

	for !front.empty() && attempts < maxAttempts && e.clk.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		node := front.pop()
		attempts++
		e.logger.Debug("querying node", "attempt", attempts, "node", node, "key", key)

		resp, err := e.getPeers(ctx, node, infoHash)
		if err != nil {
			e.logger.Debug("node query failed", "node", node, "error", err)
			continue
		}

		switch r := resp.(type) {
		case *PeersResponse:
			sp := e.fetchFromPeers(ctx, r.Peers, target)
			if sp == nil {
				continue
			}
			e.cache.Set(key, sp, sp.TTL(e.minTTL, e.maxTTL))
			e.logger.Info("lookup succeeded",
				"key", key,
				"attempts", attempts,
				"elapsed", e.clk.Now().Sub(start),
			)
			return sp, nil

		case *NodesResponse:
			addrs := make([]string, len(r.Nodes))
			for i, n := range r.Nodes {
				addrs[i] = n.Addr.String()
			}
			added := front.pushFront(addrs)
			e.mergeKnownNodes(r.Nodes)
			e.logger.Debug("widened frontier", "node", node, "added", added)

		case *ErrorResponse:
			e.logger.Debug("node returned error reply",
				"node", node, "code", r.Code, "message", r.Message)
		}
	}

	switch {
	case attempts >= maxAttempts:
		e.logger.Warn("lookup terminated: maximum attempts reached", "key", key, "attempts", attempts)
	case !e.clk.Now().Before(deadline):
		e.logger.Warn("lookup terminated: timeout reached", "key", key, "attempts", attempts)
	default:
		e.logger.Warn("lookup terminated: no more nodes to query", "key", key, "attempts", attempts)
	}
	return nil, ErrNotFound
}

// getPeers runs one get_peers round trip against node.
func (e *Engine) getPeers(ctx context.Context, node string, infoHash [sha1.Size]byte) (Response, error) {
	tid, err := newTransactionID()
	if err != nil {
		return nil, err
	}
	payload, err := encodeGetPeers(tid, e.nodeID, infoHash)
	if err != nil {
		return nil, err
	}
	raw, err := queryNode(ctx, node, payload, e.queryTimeout)
	if err != nil {
		return nil, err
	}
	return parseResponse(raw, tid)
}

// fetchFromPeers tries each discovered peer in turn and returns the first
// packet that verifies against the target key. Per-peer failures are
// logged and skipped.
func (e *Engine) fetchFromPeers(ctx context.Context, peers []netip.AddrPort, target keys.PublicKey) *pkarr.SignedPacket {
	if e.fetcher == nil {
		e.logger.Debug("no packet fetcher configured, ignoring peer values", "peers", len(peers))
		return nil
	}
	for _, peer := range peers {
		sp, err := e.fetcher.Fetch(ctx, peer, target)
		if err != nil {
			e.logger.Debug("peer fetch failed", "peer", peer, "error", err)
			continue
		}
		if sp.PublicKey() != target {
			e.logger.Warn("peer returned packet for wrong key",
				"peer", peer, "got", sp.PublicKey(), "want", target)
			continue
		}
		return sp
	}
	return nil
}

// mergeKnownNodes folds discovered nodes into the long-lived known set.
func (e *Engine) mergeKnownNodes(nodes []NodeAddr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range nodes {
		e.known[n.Addr.String()] = struct{}{}
	}
}

// KnownNodes returns a snapshot of the known-node set.
func (e *Engine) KnownNodes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.known))
	for n := range e.known {
		out = append(out, n)
	}
	return out
}

func (e *Engine) removeKnownNode(node string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.known, node)
}

// CacheStats exposes result-cache hit/miss counters for diagnostics.
func (e *Engine) CacheStats() (hits, misses int) {
	return e.cache.Stats()
}

// frontier is the per-lookup traversal state: candidates not yet queried
// plus everything ever enqueued, so no node is queried twice within one
// lookup. pop takes from the front and push prepends, giving newly
// discovered nodes priority over the remaining seeds.
type frontier struct {
	pending []string
	seen    map[string]struct{}
}

func newFrontier(seeds []string) *frontier {
	f := &frontier{seen: make(map[string]struct{}, len(seeds))}
	f.pushFront(seeds)
	return f
}

func (f *frontier) empty() bool {
	return len(f.pending) == 0
}

// pop removes and returns the next candidate. Callers must check empty first.
func (f *frontier) pop() string {
	node := f.pending[0]
	f.pending = f.pending[1:]
	return node
}

// pushFront enqueues candidates ahead of the pending set, preserving their
// order and skipping anything already seen. Returns how many were added.
func (f *frontier) pushFront(nodes []string) int {
	fresh := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := f.seen[n]; ok {
			continue
		}
		f.seen[n] = struct{}{}
		fresh = append(fresh, n)
	}
	if len(fresh) > 0 {
		f.pending = append(fresh, f.pending...)
	}
	return len(fresh)
}
