package pkarr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jroosing/pkarr/internal/dnsmsg"
	"github.com/jroosing/pkarr/internal/keys"
)

// withMockClock installs a mock freshness clock for the duration of a test.
func withMockClock(t *testing.T) *clock.Mock {
	t.Helper()
	mock := clock.NewMock()
	prev := clk
	clk = mock
	t.Cleanup(func() { clk = prev })
	return mock
}

func testKeypair(t *testing.T) *keys.Keypair {
	t.Helper()
	seed := bytes.Repeat([]byte{0x07}, keys.SecretKeySize)
	kp, err := keys.KeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return kp
}

func testPacket(t *testing.T, kp *keys.Keypair, ttls ...uint32) *dnsmsg.Packet {
	t.Helper()
	p := dnsmsg.NewReply(0)
	for i, ttl := range ttls {
		data := "192.0.2.1"
		if i%2 == 1 {
			data = "192.0.2.2"
		}
		rr, err := dnsmsg.NewResourceRecord(kp.PublicKey().String(), "IN", "A", ttl, data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p.AddAnswer(rr)
	}
	return p
}

func TestSignableLayout(t *testing.T) {
	got := Signable(1234567890, []byte("abc"))
	want := []byte("3:seqi1234567890e1:v3:abc")
	if !bytes.Equal(got, want) {
		t.Errorf("signable mismatch:\n got %q\nwant %q", got, want)
	}

	got = Signable(0, nil)
	want = []byte("3:seqi0e1:v0:")
	if !bytes.Equal(got, want) {
		t.Errorf("signable mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestSignedPacketRoundTrip(t *testing.T) {
	withMockClock(t)
	kp := testKeypair(t)

	sp, err := FromPacket(kp, testPacket(t, kp, 300, 60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := FromBytes(sp.Bytes())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if parsed.PublicKey() != sp.PublicKey() {
		t.Errorf("signer mismatch: %s vs %s", parsed.PublicKey(), sp.PublicKey())
	}
	if parsed.Timestamp() != sp.Timestamp() {
		t.Errorf("timestamp mismatch: %d vs %d", parsed.Timestamp(), sp.Timestamp())
	}
	if !bytes.Equal(parsed.Signature(), sp.Signature()) {
		t.Error("signature mismatch after round trip")
	}
	if len(parsed.Packet().Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(parsed.Packet().Answers))
	}
	for i, rr := range parsed.Packet().Answers {
		if rr != sp.Packet().Answers[i] {
			t.Errorf("answer %d mismatch: %v vs %v", i, rr, sp.Packet().Answers[i])
		}
	}
}

func TestRelayPayloadRoundTrip(t *testing.T) {
	withMockClock(t)
	kp := testKeypair(t)

	sp, err := FromPacket(kp, testPacket(t, kp, 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := sp.RelayPayload()
	if len(payload) != len(sp.Bytes())-keys.PublicKeySize {
		t.Fatalf("relay payload length %d, expected %d", len(payload), len(sp.Bytes())-keys.PublicKeySize)
	}

	parsed, err := FromRelayPayload(kp.PublicKey(), payload)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if parsed.Timestamp() != sp.Timestamp() {
		t.Errorf("timestamp mismatch: %d vs %d", parsed.Timestamp(), sp.Timestamp())
	}
}

func TestFromRelayPayloadSizeBounds(t *testing.T) {
	kp := testKeypair(t)

	if _, err := FromRelayPayload(kp.PublicKey(), make([]byte, MinRelayPayloadSize-1)); !errors.Is(err, ErrInvalidRelayPayloadSize) {
		t.Errorf("expected ErrInvalidRelayPayloadSize, got %v", err)
	}
	if _, err := FromRelayPayload(kp.PublicKey(), make([]byte, MaxRelayPayloadSize+1)); !errors.Is(err, ErrInvalidRelayPayloadSize) {
		t.Errorf("expected ErrInvalidRelayPayloadSize, got %v", err)
	}
}

func TestFromBytesRejectsMutation(t *testing.T) {
	withMockClock(t)
	kp := testKeypair(t)

	sp, err := FromPacket(kp, testPacket(t, kp, 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wire := sp.Bytes()

	// One byte in each of the signature, timestamp and packet regions.
	for _, off := range []int{40, 100, len(wire) - 1} {
		mutated := make([]byte, len(wire))
		copy(mutated, wire)
		mutated[off] ^= 0x01

		if _, err := FromBytes(mutated); err == nil {
			t.Errorf("expected verification failure with byte %d mutated", off)
		}
	}
}

func TestFromBytesLengthBounds(t *testing.T) {
	withMockClock(t)
	kp := testKeypair(t)

	if _, err := FromBytes(make([]byte, MinSignedPacketSize-1)); !errors.Is(err, ErrInvalidBytesLength) {
		t.Errorf("expected ErrInvalidBytesLength for 103 bytes, got %v", err)
	}
	if _, err := FromBytes(make([]byte, MaxSignedPacketSize+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("expected ErrPacketTooLarge for 1105 bytes, got %v", err)
	}

	// Exactly 104 bytes with an empty encoded packet is valid when signed.
	timestamp := uint64(42)
	sig := kp.Sign(Signable(timestamp, nil))

	wire := make([]byte, 0, MinSignedPacketSize)
	wire = append(wire, kp.PublicKey().Bytes()...)
	wire = append(wire, sig...)
	wire = binary.BigEndian.AppendUint64(wire, timestamp)

	sp, err := FromBytes(wire)
	if err != nil {
		t.Fatalf("expected 104-byte packet to verify, got %v", err)
	}
	if len(sp.Packet().Answers) != 0 {
		t.Errorf("expected empty record set, got %d answers", len(sp.Packet().Answers))
	}
	if sp.Timestamp() != timestamp {
		t.Errorf("timestamp mismatch: %d vs %d", sp.Timestamp(), timestamp)
	}
}

func TestFromPacketRejectsOversize(t *testing.T) {
	kp := testKeypair(t)

	// Enough TXT records to push the encoding past 1000 bytes.
	p := dnsmsg.NewReply(0)
	for i := 0; i < 30; i++ {
		rr, err := dnsmsg.NewResourceRecord(
			kp.PublicKey().String(), "IN", "TXT", 300,
			`"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p.AddAnswer(rr)
	}

	if _, err := FromPacket(kp, p); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestTTLClamping(t *testing.T) {
	withMockClock(t)
	kp := testKeypair(t)

	const (
		minTTL = 300 * time.Second
		maxTTL = 86400 * time.Second
	)

	tests := []struct {
		name string
		ttls []uint32
		want time.Duration
	}{
		{"no records yields min", nil, minTTL},
		{"low ttls floored", []uint32{10, 50, 7}, minTTL},
		{"in range uses lowest", []uint32{7200, 3600}, 3600 * time.Second},
		{"huge ttl capped", []uint32{1000000}, maxTTL},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp, err := FromPacket(kp, testPacket(t, kp, tc.ttls...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := sp.TTL(minTTL, maxTTL); got != tc.want {
				t.Errorf("ttl = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestElapsedAndExpiresIn(t *testing.T) {
	mock := withMockClock(t)
	kp := testKeypair(t)

	sp, err := FromPacket(kp, testPacket(t, kp, 3600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sp.Elapsed() != 0 {
		t.Errorf("expected zero elapsed at creation, got %v", sp.Elapsed())
	}

	mock.Add(100 * time.Second)
	if sp.Elapsed() != 100*time.Second {
		t.Errorf("elapsed = %v, want 100s", sp.Elapsed())
	}
	if got := sp.ExpiresIn(300*time.Second, 86400*time.Second); got != 3500*time.Second {
		t.Errorf("expires_in = %v, want 3500s", got)
	}

	mock.Add(4000 * time.Second)
	if got := sp.ExpiresIn(300*time.Second, 86400*time.Second); got != 0 {
		t.Errorf("expires_in floored at zero, got %v", got)
	}
}

func TestResourceRecordsNormalization(t *testing.T) {
	withMockClock(t)
	kp := testKeypair(t)
	origin := kp.PublicKey().String()

	p := dnsmsg.NewReply(0)
	apex, err := dnsmsg.NewResourceRecord(origin, "IN", "A", 300, "192.0.2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	www, err := dnsmsg.NewResourceRecord("www."+origin, "IN", "A", 300, "192.0.2.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.AddAnswer(apex)
	p.AddAnswer(www)

	sp, err := FromPacket(kp, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{"@", "192.0.2.1"},
		{"", "192.0.2.1"},
		{origin, "192.0.2.1"},
		{origin + ".", "192.0.2.1"},
		{"www", "192.0.2.2"},
		{"www." + origin, "192.0.2.2"},
	}
	for _, tc := range tests {
		rrs := sp.ResourceRecords(tc.query)
		if len(rrs) != 1 {
			t.Errorf("query %q: expected 1 record, got %d", tc.query, len(rrs))
			continue
		}
		if rrs[0].Data != tc.want {
			t.Errorf("query %q: got %s, want %s", tc.query, rrs[0].Data, tc.want)
		}
	}

	if rrs := sp.ResourceRecords("mail"); len(rrs) != 0 {
		t.Errorf("expected no records for unknown name, got %d", len(rrs))
	}
}

func TestFreshResourceRecords(t *testing.T) {
	mock := withMockClock(t)
	kp := testKeypair(t)
	origin := kp.PublicKey().String()

	p := dnsmsg.NewReply(0)
	short, err := dnsmsg.NewResourceRecord(origin, "IN", "A", 30, "192.0.2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := dnsmsg.NewResourceRecord(origin, "IN", "A", 600, "192.0.2.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.AddAnswer(short)
	p.AddAnswer(long)

	sp, err := FromPacket(kp, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(sp.FreshResourceRecords("@")); got != 2 {
		t.Fatalf("expected 2 fresh records at creation, got %d", got)
	}

	mock.Add(60 * time.Second)
	fresh := sp.FreshResourceRecords("@")
	if len(fresh) != 1 {
		t.Fatalf("expected 1 fresh record after 60s, got %d", len(fresh))
	}
	if fresh[0].Data != "192.0.2.2" {
		t.Errorf("expected the long-lived record to survive, got %s", fresh[0].Data)
	}

	// ResourceRecords ignores freshness entirely.
	if got := len(sp.ResourceRecords("@")); got != 2 {
		t.Errorf("expected 2 records regardless of ttl, got %d", got)
	}
}
