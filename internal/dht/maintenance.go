package dht

import (
	"context"
	"time"
)

// MaintainNetwork pings known nodes on a fixed interval and prunes the
// ones that stop answering. It is best-effort background upkeep,
// independent of any in-flight lookup; Lookup never depends on it.
// Blocks until ctx is canceled.
func (e *Engine) MaintainNetwork(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := e.clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshKnownNodes(ctx)
		}
	}
}

// refreshKnownNodes pings a snapshot of the known-node set sequentially,
// dropping unresponsive nodes. Bootstrap nodes are kept even when a ping
// fails so lookups always have a seed set.
func (e *Engine) refreshKnownNodes(ctx context.Context) {
	seeds := make(map[string]struct{}, len(e.bootstrap))
	for _, n := range e.bootstrap {
		seeds[n] = struct{}{}
	}

	for _, node := range e.KnownNodes() {
		if ctx.Err() != nil {
			return
		}
		if err := e.ping(ctx, node); err != nil {
			if _, isSeed := seeds[node]; isSeed {
				e.logger.Debug("bootstrap node unresponsive", "node", node, "error", err)
				continue
			}
			e.logger.Debug("dropping unresponsive node", "node", node, "error", err)
			e.removeKnownNode(node)
		}
	}
}

// ping runs one KRPC ping round trip. Any well-formed reply counts as
// alive; an error reply still proves the node is reachable.
func (e *Engine) ping(ctx context.Context, node string) error {
	tid, err := newTransactionID()
	if err != nil {
		return err
	}
	payload, err := encodePing(tid, e.nodeID)
	if err != nil {
		return err
	}
	raw, err := queryNode(ctx, node, payload, e.queryTimeout)
	if err != nil {
		return err
	}
	return pingReplyOK(raw, tid)
}
