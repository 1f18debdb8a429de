// Package dnsmsg models the DNS-shaped record sets carried inside pkarr
// signed packets.
//
// The package owns the Packet and ResourceRecord types and delegates all
// wire-format work (name compression, rdata encoding, header packing) to
// github.com/miekg/dns. Only the answer section is meaningful for pkarr;
// questions, authorities and additionals are never carried.
package dnsmsg

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	// ErrInvalidRecord is a sentinel error for records that fail
	// construction-time validation.
	// Wrap this with fmt.Errorf("context: %w", ErrInvalidRecord) to add context.
	ErrInvalidRecord = errors.New("invalid resource record")

	// ErrMalformedPacket is a sentinel error for byte streams that cannot be
	// encoded to or decoded from DNS wire format.
	ErrMalformedPacket = errors.New("malformed dns packet")
)

// ResourceRecord is a single DNS-like entry: an owner name, class, type,
// TTL in seconds and typed rdata in presentation format.
//
// Records are normalized and validated at construction and immutable after:
// the name is lowercased, class and type are uppercased, and type-specific
// rdata is checked (an A record's rdata must parse as an IPv4 address, an
// AAAA record's as IPv6).
type ResourceRecord struct {
	Name  string
	Class string
	Type  string
	TTL   uint32
	Data  string
}

// NewResourceRecord validates and normalizes a record.
// Data uses DNS presentation format (e.g. "192.0.2.1" for A,
// "\"some text\"" for TXT, "target.example." for CNAME).
func NewResourceRecord(name, class, rtype string, ttl uint32, data string) (ResourceRecord, error) {
	rr := ResourceRecord{
		Name:  strings.ToLower(strings.TrimSuffix(name, ".")),
		Class: strings.ToUpper(strings.TrimSpace(class)),
		Type:  strings.ToUpper(strings.TrimSpace(rtype)),
		TTL:   ttl,
		Data:  data,
	}
	if rr.Name == "" {
		return ResourceRecord{}, fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	if rr.Class == "" {
		rr.Class = "IN"
	}
	if rr.Type == "" {
		return ResourceRecord{}, fmt.Errorf("%w: empty type", ErrInvalidRecord)
	}

	switch rr.Type {
	case "A":
		addr, err := netip.ParseAddr(rr.Data)
		if err != nil || !addr.Is4() {
			return ResourceRecord{}, fmt.Errorf("%w: A rdata %q is not an IPv4 address", ErrInvalidRecord, rr.Data)
		}
	case "AAAA":
		addr, err := netip.ParseAddr(rr.Data)
		if err != nil || !addr.Is6() || addr.Is4In6() {
			return ResourceRecord{}, fmt.Errorf("%w: AAAA rdata %q is not an IPv6 address", ErrInvalidRecord, rr.Data)
		}
	default:
		if strings.TrimSpace(rr.Data) == "" {
			return ResourceRecord{}, fmt.Errorf("%w: empty rdata for %s record", ErrInvalidRecord, rr.Type)
		}
	}
	return rr, nil
}

// String renders the record in zone-file order.
func (rr ResourceRecord) String() string {
	return fmt.Sprintf("%s %d %s %s %s", rr.Name, rr.TTL, rr.Class, rr.Type, rr.Data)
}
