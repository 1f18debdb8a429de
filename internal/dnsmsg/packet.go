package dnsmsg

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Packet is an ordered sequence of answer records plus the DNS header
// fields that survive a pkarr round trip. Once a packet has been signed it
// is owned by the SignedPacket and must not be mutated.
type Packet struct {
	ID                 uint16
	Response           bool
	Opcode             int
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	Rcode              int
	Answers            []ResourceRecord
}

// NewReply creates an empty authoritative response packet, the usual shape
// for a pkarr record set.
func NewReply(id uint16) *Packet {
	return &Packet{ID: id, Response: true, Authoritative: true}
}

// AddAnswer appends a record to the answer section.
func (p *Packet) AddAnswer(rr ResourceRecord) {
	p.Answers = append(p.Answers, rr)
}

// Encode builds the compressed DNS wire form of the packet.
func (p *Packet) Encode() ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = p.ID
	msg.Response = p.Response
	msg.Opcode = p.Opcode
	msg.Authoritative = p.Authoritative
	msg.Truncated = p.Truncated
	msg.RecursionDesired = p.RecursionDesired
	msg.RecursionAvailable = p.RecursionAvailable
	msg.Rcode = p.Rcode
	msg.Compress = true

	for _, rr := range p.Answers {
		wire, err := toWireRR(rr)
		if err != nil {
			return nil, err
		}
		msg.Answer = append(msg.Answer, wire)
	}

	out, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return out, nil
}

// Decode parses DNS wire bytes into a Packet. Only the header and the
// answer section are retained.
func Decode(b []byte) (*Packet, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	p := &Packet{
		ID:                 msg.Id,
		Response:           msg.Response,
		Opcode:             msg.Opcode,
		Authoritative:      msg.Authoritative,
		Truncated:          msg.Truncated,
		RecursionDesired:   msg.RecursionDesired,
		RecursionAvailable: msg.RecursionAvailable,
		Rcode:              msg.Rcode,
	}
	for _, wire := range msg.Answer {
		rr, err := fromWireRR(wire)
		if err != nil {
			return nil, err
		}
		p.Answers = append(p.Answers, rr)
	}
	return p, nil
}

// toWireRR converts a validated record to the codec's representation by
// round-tripping through zone-file syntax, which is the codec's supported
// construction path for arbitrary record types.
func toWireRR(rr ResourceRecord) (dns.RR, error) {
	text := fmt.Sprintf("%s %d %s %s %s", dns.Fqdn(rr.Name), rr.TTL, rr.Class, rr.Type, rr.Data)
	wire, err := dns.NewRR(text)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %q: %v", ErrMalformedPacket, text, err)
	}
	if wire == nil {
		return nil, fmt.Errorf("%w: encoding %q produced no record", ErrMalformedPacket, text)
	}
	return wire, nil
}

// fromWireRR converts a codec record back to the pkarr model.
func fromWireRR(wire dns.RR) (ResourceRecord, error) {
	hdr := wire.Header()
	rtype, ok := dns.TypeToString[hdr.Rrtype]
	if !ok {
		rtype = fmt.Sprintf("TYPE%d", hdr.Rrtype)
	}
	class, ok := dns.ClassToString[hdr.Class]
	if !ok {
		class = fmt.Sprintf("CLASS%d", hdr.Class)
	}

	// The codec renders "<header><rdata>"; strip the header prefix to
	// recover the rdata presentation text.
	data := strings.TrimPrefix(wire.String(), hdr.String())

	return NewResourceRecord(hdr.Name, class, rtype, hdr.Ttl, data)
}
