package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/jroosing/pkarr/internal/keys"
	"github.com/jroosing/pkarr/internal/pkarr"
)

// ErrConflict indicates the relay already holds a newer packet for the key.
var ErrConflict = errors.New("relay holds a newer packet")

// Client talks to one relay over HTTP. Its Fetch method satisfies the
// lookup engine's packet-fetcher contract, so discovered DHT peers can be
// treated as relay endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the relay at baseURL
// (e.g. "https://relay.example.com").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fetches and verifies the packet for key from the relay.
func (c *Client) Resolve(ctx context.Context, key keys.PublicKey) (*pkarr.SignedPacket, error) {
	return c.resolveURL(ctx, fmt.Sprintf("%s/%s", c.baseURL, key), key)
}

// Publish uploads the packet's relay payload under its public key.
func (c *Client) Publish(ctx context.Context, sp *pkarr.SignedPacket) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, sp.PublicKey())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(sp.RelayPayload()))
	if err != nil {
		return fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, sp.PublicKey())
	case resp.StatusCode >= 300:
		return fmt.Errorf("publishing to %s: unexpected status %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

// Fetch retrieves the packet for target from peer, treating it as a relay
// endpoint. It implements the lookup engine's PacketFetcher interface.
func (c *Client) Fetch(ctx context.Context, peer netip.AddrPort, target keys.PublicKey) (*pkarr.SignedPacket, error) {
	return c.resolveURL(ctx, fmt.Sprintf("http://%s/%s", peer, target), target)
}

func (c *Client) resolveURL(ctx context.Context, url string, key keys.PublicKey) (*pkarr.SignedPacket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building resolve request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("resolving %s: unexpected status %d", key, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, pkarr.MaxRelayPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading payload for %s: %w", key, err)
	}

	sp, err := pkarr.FromRelayPayload(key, payload)
	if err != nil {
		return nil, fmt.Errorf("verifying payload for %s: %w", key, err)
	}
	return sp, nil
}
