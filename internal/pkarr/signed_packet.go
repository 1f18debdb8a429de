// Package pkarr implements the signed-packet trust and freshness protocol.
//
// A SignedPacket is the unit of trust in the system: a DNS-shaped record
// set, the Ed25519 public key of its signer, a monotonically increasing
// microsecond timestamp, and a signature over the canonical signable byte
// string derived from (timestamp, encoded packet). The byte layout is
// compatible with BitTorrent BEP 44 mutable-item signing:
//
//	signable  = "3:seqi" <timestamp> "e1:v" <len(encoded)> ":" ‖ encoded
//	wire form = pubkey[32] ‖ signature[64] ‖ timestamp[8, big-endian] ‖ encoded
//
// The encoded packet may be at most 1000 bytes, bounding the wire form to
// [104, 1104] bytes. A relay payload is the wire form with the leading
// public key stripped (the signer is known from context, e.g. a URL path).
//
// FromBytes and FromRelayPayload are the only places where
// attacker-controlled bytes enter the trust domain; both verify the
// signature before returning a packet.
package pkarr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jroosing/pkarr/internal/dnsmsg"
	"github.com/jroosing/pkarr/internal/keys"
)

// Byte-format bounds for signed packets and relay payloads.
const (
	// MaxEncodedPacketSize is the largest DNS encoding accepted for signing.
	MaxEncodedPacketSize = 1000

	// MinSignedPacketSize is pubkey(32) + signature(64) + timestamp(8).
	MinSignedPacketSize = 104

	// MaxSignedPacketSize is MinSignedPacketSize + MaxEncodedPacketSize.
	MaxSignedPacketSize = 1104

	// MinRelayPayloadSize is MinSignedPacketSize without the public key.
	MinRelayPayloadSize = 72

	// MaxRelayPayloadSize is MaxSignedPacketSize without the public key.
	MaxRelayPayloadSize = 1072

	signatureSize = 64
	timestampSize = 8
	signatureOff  = keys.PublicKeySize
	timestampOff  = signatureOff + signatureSize
	encodedOff    = timestampOff + timestampSize
)

var (
	// ErrPacketTooLarge is a sentinel error for encoded packets over
	// MaxEncodedPacketSize bytes (or wire forms over MaxSignedPacketSize).
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrInvalidBytesLength is a sentinel error for wire forms shorter than
	// MinSignedPacketSize bytes.
	ErrInvalidBytesLength = errors.New("invalid signed packet bytes length")

	// ErrInvalidRelayPayloadSize is a sentinel error for relay payloads
	// outside [MinRelayPayloadSize, MaxRelayPayloadSize].
	ErrInvalidRelayPayloadSize = errors.New("invalid relay payload size")

	// ErrInvalidSignature is a sentinel error for signatures that do not
	// verify over the canonical signable bytes.
	ErrInvalidSignature = errors.New("invalid signature")
)

// clk is the freshness clock. Tests swap in a mock to control elapsed time.
var clk clock.Clock = clock.New()

// SignedPacket is an immutable, verified record set for one public key.
//
// lastSeen is stamped locally when the packet is created or reconstructed;
// it feeds freshness arithmetic only and never affects signature validity.
type SignedPacket struct {
	publicKey keys.PublicKey
	signature [signatureSize]byte
	timestamp uint64 // microseconds since the Unix epoch
	encoded   []byte // DNS wire form, the signed payload
	packet    *dnsmsg.Packet
	lastSeen  time.Time
}

// Signable builds the canonical byte string that is signed and verified.
// Any change to this layout breaks compatibility with every existing
// signature, so it must stay byte-for-byte as documented above.
func Signable(timestamp uint64, encoded []byte) []byte {
	prefix := fmt.Sprintf("3:seqi%de1:v%d:", timestamp, len(encoded))
	out := make([]byte, 0, len(prefix)+len(encoded))
	out = append(out, prefix...)
	return append(out, encoded...)
}

// FromPacket signs packet with keypair and returns the resulting
// SignedPacket. Fails with ErrPacketTooLarge if the encoded form exceeds
// MaxEncodedPacketSize bytes.
func FromPacket(keypair *keys.Keypair, packet *dnsmsg.Packet) (*SignedPacket, error) {
	encoded, err := packet.Encode()
	if err != nil {
		return nil, err
	}
	if len(encoded) > MaxEncodedPacketSize {
		return nil, fmt.Errorf("%w: encoded to %d bytes, max %d", ErrPacketTooLarge, len(encoded), MaxEncodedPacketSize)
	}

	now := clk.Now()
	timestamp := uint64(now.UnixMicro())
	sig := keypair.Sign(Signable(timestamp, encoded))

	sp := &SignedPacket{
		publicKey: keypair.PublicKey(),
		timestamp: timestamp,
		encoded:   encoded,
		packet:    packet,
		lastSeen:  now,
	}
	copy(sp.signature[:], sig)
	return sp, nil
}

// FromBytes reconstructs and verifies a SignedPacket from its wire form.
// This is the trust boundary for received bytes: the signature is checked
// against the recomputed signable string before anything is returned.
func FromBytes(b []byte) (*SignedPacket, error) {
	if len(b) < MinSignedPacketSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d", ErrInvalidBytesLength, MinSignedPacketSize, len(b))
	}
	if len(b) > MaxSignedPacketSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPacketTooLarge, len(b), MaxSignedPacketSize)
	}

	publicKey, err := keys.PublicKeyFromBytes(b[:keys.PublicKeySize])
	if err != nil {
		return nil, err
	}
	timestamp := binary.BigEndian.Uint64(b[timestampOff:encodedOff])

	encoded := make([]byte, len(b)-encodedOff)
	copy(encoded, b[encodedOff:])

	if !publicKey.Verify(Signable(timestamp, encoded), b[signatureOff:timestampOff]) {
		return nil, fmt.Errorf("%w: for key %s", ErrInvalidSignature, publicKey)
	}

	// An empty value is valid under BEP 44 framing and decodes to an
	// empty record set without touching the codec.
	packet := &dnsmsg.Packet{}
	if len(encoded) > 0 {
		packet, err = dnsmsg.Decode(encoded)
		if err != nil {
			return nil, err
		}
	}

	sp := &SignedPacket{
		publicKey: publicKey,
		timestamp: timestamp,
		encoded:   encoded,
		packet:    packet,
		lastSeen:  clk.Now(),
	}
	copy(sp.signature[:], b[signatureOff:timestampOff])
	return sp, nil
}

// FromRelayPayload reconstructs and verifies a SignedPacket from a relay
// payload, with the signer supplied out-of-band.
func FromRelayPayload(publicKey keys.PublicKey, payload []byte) (*SignedPacket, error) {
	if len(payload) < MinRelayPayloadSize || len(payload) > MaxRelayPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, expected %d..%d",
			ErrInvalidRelayPayloadSize, len(payload), MinRelayPayloadSize, MaxRelayPayloadSize)
	}
	full := make([]byte, 0, keys.PublicKeySize+len(payload))
	full = append(full, publicKey.Bytes()...)
	full = append(full, payload...)
	return FromBytes(full)
}

// PublicKey returns the signer.
func (sp *SignedPacket) PublicKey() keys.PublicKey {
	return sp.publicKey
}

// Signature returns a copy of the 64-byte signature.
func (sp *SignedPacket) Signature() []byte {
	out := make([]byte, signatureSize)
	copy(out, sp.signature[:])
	return out
}

// Timestamp returns the signer's timestamp in microseconds since the epoch.
func (sp *SignedPacket) Timestamp() uint64 {
	return sp.timestamp
}

// Packet returns the signed record set. Callers must not mutate it.
func (sp *SignedPacket) Packet() *dnsmsg.Packet {
	return sp.packet
}

// Bytes returns the wire form: pubkey ‖ signature ‖ timestamp ‖ encoded packet.
func (sp *SignedPacket) Bytes() []byte {
	out := make([]byte, 0, encodedOff+len(sp.encoded))
	out = append(out, sp.publicKey.Bytes()...)
	out = append(out, sp.signature[:]...)
	out = binary.BigEndian.AppendUint64(out, sp.timestamp)
	return append(out, sp.encoded...)
}

// RelayPayload returns Bytes with the leading public key stripped.
func (sp *SignedPacket) RelayPayload() []byte {
	return sp.Bytes()[keys.PublicKeySize:]
}

// TTL derives the caching lifetime of the packet: the smallest record TTL,
// clamped to [minTTL, maxTTL]. An empty record set yields minTTL. The clamp
// keeps a malicious signer from forcing unbounded caching or zero caching.
func (sp *SignedPacket) TTL(minTTL, maxTTL time.Duration) time.Duration {
	if len(sp.packet.Answers) == 0 {
		return minTTL
	}
	lowest := sp.packet.Answers[0].TTL
	for _, rr := range sp.packet.Answers[1:] {
		if rr.TTL < lowest {
			lowest = rr.TTL
		}
	}
	ttl := time.Duration(lowest) * time.Second
	if ttl < minTTL {
		return minTTL
	}
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}

// Elapsed returns whole seconds since the packet was last observed locally.
func (sp *SignedPacket) Elapsed() time.Duration {
	return clk.Now().Sub(sp.lastSeen).Truncate(time.Second)
}

// ExpiresIn returns the remaining cache lifetime, floored at zero.
func (sp *SignedPacket) ExpiresIn(minTTL, maxTTL time.Duration) time.Duration {
	remaining := sp.TTL(minTTL, maxTTL) - sp.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResourceRecords returns the records whose owner matches name, normalized
// against the signer's z-base-32 identity as the zone origin.
func (sp *SignedPacket) ResourceRecords(name string) []dnsmsg.ResourceRecord {
	normalized := normalizeName(sp.publicKey.String(), name)
	var out []dnsmsg.ResourceRecord
	for _, rr := range sp.packet.Answers {
		if rr.Name == normalized {
			out = append(out, rr)
		}
	}
	return out
}

// FreshResourceRecords is ResourceRecords minus any record whose own TTL
// has elapsed since the packet was last observed.
func (sp *SignedPacket) FreshResourceRecords(name string) []dnsmsg.ResourceRecord {
	normalized := normalizeName(sp.publicKey.String(), name)
	elapsed := int64(sp.Elapsed() / time.Second)
	var out []dnsmsg.ResourceRecord
	for _, rr := range sp.packet.Answers {
		if rr.Name == normalized && int64(rr.TTL) > elapsed {
			out = append(out, rr)
		}
	}
	return out
}

// String renders the packet for logs and CLI output.
func (sp *SignedPacket) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SignedPacket (%s):\n", sp.publicKey)
	fmt.Fprintf(&b, "    last_seen: %d seconds ago\n", int64(sp.Elapsed()/time.Second))
	fmt.Fprintf(&b, "    timestamp: %d\n", sp.timestamp)
	fmt.Fprintf(&b, "    signature: %X\n", sp.signature[:])
	b.WriteString("    records:\n")
	for _, rr := range sp.packet.Answers {
		fmt.Fprintf(&b, "        %s\n", rr)
	}
	return b.String()
}

// normalizeName resolves a query name against the signer's identity as the
// implicit zone origin: a trailing dot is stripped, "@" or an empty name
// means the origin itself, an already-qualified name is kept, and anything
// else is treated as relative to the origin.
func normalizeName(origin, name string) string {
	name = strings.TrimSuffix(strings.ToLower(name), ".")

	parts := strings.Split(name, ".")
	last := parts[len(parts)-1]

	switch {
	case last == origin:
		return name
	case last == "@" || last == "":
		return origin
	default:
		return name + "." + origin
	}
}
