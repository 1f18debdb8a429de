package dnsmsg

import (
	"errors"
	"testing"
)

func TestNewResourceRecordNormalization(t *testing.T) {
	rr, err := NewResourceRecord("WWW.Example.COM.", "in", "a", 300, "192.0.2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.Name != "www.example.com" {
		t.Errorf("name not lowercased/trimmed: %q", rr.Name)
	}
	if rr.Class != "IN" || rr.Type != "A" {
		t.Errorf("class/type not uppercased: %q %q", rr.Class, rr.Type)
	}
}

func TestNewResourceRecordDefaultsClass(t *testing.T) {
	rr, err := NewResourceRecord("example.com", "", "TXT", 60, `"hello"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.Class != "IN" {
		t.Errorf("expected IN default class, got %q", rr.Class)
	}
}

func TestNewResourceRecordValidation(t *testing.T) {
	tests := []struct {
		name    string
		rname   string
		rtype   string
		data    string
		wantErr bool
	}{
		{"valid A", "example.com", "A", "192.0.2.1", false},
		{"A with hostname rdata", "example.com", "A", "not-an-ip", true},
		{"A with IPv6 rdata", "example.com", "A", "2001:db8::1", true},
		{"valid AAAA", "example.com", "AAAA", "2001:db8::1", false},
		{"AAAA with IPv4 rdata", "example.com", "AAAA", "192.0.2.1", true},
		{"valid CNAME", "example.com", "CNAME", "target.example.com.", false},
		{"empty name", "", "A", "192.0.2.1", true},
		{"empty type", "example.com", "", "192.0.2.1", true},
		{"empty rdata", "example.com", "TXT", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResourceRecord(tc.rname, "IN", tc.rtype, 300, tc.data)
			if tc.wantErr && !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
