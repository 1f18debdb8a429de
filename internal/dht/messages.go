// Package dht implements the Mainline-DHT lookup engine that resolves a
// public key to a verified signed packet.
//
// The DHT is used purely as a rendezvous: the engine walks the node space
// with get_peers queries on the SHA-1 info-hash of the target public key
// until it finds peers claiming to hold the record set, then hands each
// peer to a PacketFetcher for retrieval and verification.
//
// Wire messages are KRPC: bencoded dictionaries over UDP with keys t
// (transaction id), y (message type q/r/e), q/a (query name/arguments),
// r (reply body) or e (error code + message). Replies are decoded into a
// tagged Response variant at the transport boundary so no untyped maps
// leak into the traversal logic.
package dht

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/zeebo/bencode"
)

var (
	// ErrDHT is a sentinel error for transport or protocol-level faults
	// with a remote node. Lookup recovers these per node; they never abort
	// a traversal.
	ErrDHT = errors.New("dht error")

	// ErrNotFound is the terminal negative outcome of a lookup: the
	// frontier, attempt budget or deadline was exhausted without a
	// verified packet. It is a normal outcome, not a fault.
	ErrNotFound = errors.New("record not found")
)

const (
	compactNodeSize = 26 // 20-byte node id + 4-byte IPv4 + 2-byte port
	compactPeerSize = 6  // 4-byte IPv4 + 2-byte port
)

// krpcMessage is the raw bencoded envelope shared by queries and replies.
type krpcMessage struct {
	T string        `bencode:"t"`
	Y string        `bencode:"y"`
	Q string        `bencode:"q,omitempty"`
	A *krpcArgs     `bencode:"a,omitempty"`
	R *krpcReturn   `bencode:"r,omitempty"`
	E []interface{} `bencode:"e,omitempty"`
}

type krpcArgs struct {
	ID       string `bencode:"id"`
	InfoHash string `bencode:"info_hash,omitempty"`
}

type krpcReturn struct {
	ID     string   `bencode:"id,omitempty"`
	Nodes  string   `bencode:"nodes,omitempty"`
	Values []string `bencode:"values,omitempty"`
	Token  string   `bencode:"token,omitempty"`
}

// NodeAddr is one entry of a compact node list.
type NodeAddr struct {
	ID   [20]byte
	Addr netip.AddrPort
}

// Response is the tagged decoded form of one KRPC reply.
type Response interface {
	isResponse()
}

// PeersResponse carries compact peer values: endpoints claiming to hold
// the target record set.
type PeersResponse struct {
	Peers []netip.AddrPort
}

// NodesResponse carries compact node descriptors to widen the frontier.
type NodesResponse struct {
	Nodes []NodeAddr
}

// ErrorResponse is a KRPC error reply (y == "e").
type ErrorResponse struct {
	Code    int64
	Message string
}

func (*PeersResponse) isResponse() {}
func (*NodesResponse) isResponse() {}
func (*ErrorResponse) isResponse() {}

// newTransactionID returns a fresh 2-byte KRPC transaction id.
func newTransactionID() (string, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("%w: generating transaction id: %v", ErrDHT, err)
	}
	return string(b[:]), nil
}

// encodeGetPeers builds a get_peers query for infoHash.
func encodeGetPeers(tid string, nodeID, infoHash [20]byte) ([]byte, error) {
	msg := krpcMessage{
		T: tid,
		Y: "q",
		Q: "get_peers",
		A: &krpcArgs{ID: string(nodeID[:]), InfoHash: string(infoHash[:])},
	}
	out, err := bencode.EncodeBytes(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding get_peers: %v", ErrDHT, err)
	}
	return out, nil
}

// encodePing builds a ping query.
func encodePing(tid string, nodeID [20]byte) ([]byte, error) {
	msg := krpcMessage{
		T: tid,
		Y: "q",
		Q: "ping",
		A: &krpcArgs{ID: string(nodeID[:])},
	}
	out, err := bencode.EncodeBytes(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding ping: %v", ErrDHT, err)
	}
	return out, nil
}

// parseResponse decodes one reply datagram into its tagged variant,
// checking the transaction id against the query that was sent. Peer values
// win over node lists when a reply carries both.
func parseResponse(raw []byte, wantTID string) (Response, error) {
	var msg krpcMessage
	if err := bencode.DecodeBytes(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed reply: %v", ErrDHT, err)
	}

	switch msg.Y {
	case "e":
		return parseErrorReply(msg.E), nil
	case "r":
		if msg.T != wantTID {
			return nil, fmt.Errorf("%w: transaction id mismatch", ErrDHT)
		}
		if msg.R == nil {
			return nil, fmt.Errorf("%w: reply without body", ErrDHT)
		}
		if len(msg.R.Values) > 0 {
			peers, err := decodeCompactPeers(msg.R.Values)
			if err != nil {
				return nil, err
			}
			return &PeersResponse{Peers: peers}, nil
		}
		if len(msg.R.Nodes) > 0 {
			nodes, err := decodeCompactNodes([]byte(msg.R.Nodes))
			if err != nil {
				return nil, err
			}
			return &NodesResponse{Nodes: nodes}, nil
		}
		return nil, fmt.Errorf("%w: reply carries neither values nor nodes", ErrDHT)
	default:
		return nil, fmt.Errorf("%w: unexpected message type %q", ErrDHT, msg.Y)
	}
}

// parseErrorReply maps the loosely-typed e list [code, message] onto
// ErrorResponse, tolerating partial or malformed contents.
func parseErrorReply(e []interface{}) *ErrorResponse {
	resp := &ErrorResponse{}
	if len(e) > 0 {
		if code, ok := e[0].(int64); ok {
			resp.Code = code
		}
	}
	if len(e) > 1 {
		if s, ok := e[1].(string); ok {
			resp.Message = s
		}
	}
	return resp
}

// pingReplyOK checks that raw is a well-formed reply to the ping with the
// given transaction id. An error reply still proves the node is alive.
func pingReplyOK(raw []byte, wantTID string) error {
	var msg krpcMessage
	if err := bencode.DecodeBytes(raw, &msg); err != nil {
		return fmt.Errorf("%w: malformed ping reply: %v", ErrDHT, err)
	}
	switch msg.Y {
	case "e":
		return nil
	case "r":
		if msg.T != wantTID {
			return fmt.Errorf("%w: ping transaction id mismatch", ErrDHT)
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected ping reply type %q", ErrDHT, msg.Y)
	}
}

// decodeCompactNodes parses repeated 26-byte node records.
func decodeCompactNodes(b []byte) ([]NodeAddr, error) {
	if len(b)%compactNodeSize != 0 {
		return nil, fmt.Errorf("%w: compact node list of %d bytes is not a multiple of %d", ErrDHT, len(b), compactNodeSize)
	}
	nodes := make([]NodeAddr, 0, len(b)/compactNodeSize)
	for off := 0; off < len(b); off += compactNodeSize {
		var n NodeAddr
		copy(n.ID[:], b[off:off+20])
		ip := netip.AddrFrom4([4]byte(b[off+20 : off+24]))
		port := binary.BigEndian.Uint16(b[off+24 : off+26])
		n.Addr = netip.AddrPortFrom(ip, port)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// decodeCompactPeers parses 6-byte peer values, skipping entries of the
// wrong size rather than failing the whole reply.
func decodeCompactPeers(values []string) ([]netip.AddrPort, error) {
	peers := make([]netip.AddrPort, 0, len(values))
	for _, v := range values {
		if len(v) != compactPeerSize {
			continue
		}
		ip := netip.AddrFrom4([4]byte([]byte(v)[:4]))
		port := binary.BigEndian.Uint16([]byte(v)[4:6])
		peers = append(peers, netip.AddrPortFrom(ip, port))
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("%w: no usable compact peer values", ErrDHT)
	}
	return peers, nil
}
