package romserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
)

// Client talks to remote ROM servers over plain HTTP. Probes and listing
// requests use a short bounded timeout; the bulk transfer client has none,
// a download runs to completion or failure.
type Client struct {
	transferClient *http.Client
	probeClient    *http.Client
}

// Ensure Client implements port.SourceClient
var _ port.SourceClient = (*Client)(nil)

// NewClient creates a new ROM server client
func NewClient(probeTimeout time.Duration) *Client {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Client{
		transferClient: &http.Client{},
		probeClient:    &http.Client{Timeout: probeTimeout},
	}
}

// Probe issues a HEAD request against the candidate URL. A non-200 answer
// means the server responded but does not carry the file.
func (c *Client) Probe(ctx context.Context, server *domain.ROMServer, platform, filename string) (bool, error) {
	url := server.URLFor(platform, filename)
	if url == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	applyHeaders(req, server)

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// Fetch opens the bulk transfer for a ROM. The returned length is the
// advertised Content-Length, or -1 when the server did not send one.
func (c *Client) Fetch(ctx context.Context, server *domain.ROMServer, platform, filename string) (io.ReadCloser, int64, error) {
	url := server.URLFor(platform, filename)
	if url == "" {
		return nil, 0, fmt.Errorf("%w: server %s has no path for platform %s",
			domain.ErrTransferFailed, server.Name, platform)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	applyHeaders(req, server)

	resp, err := c.transferClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: unexpected status %d from %s",
			domain.ErrTransferFailed, resp.StatusCode, server.Name)
	}

	return resp.Body, resp.ContentLength, nil
}

// listingEntry matches the nginx autoindex JSON directory format
type listingEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// List fetches the server's directory listing for a platform
func (c *Client) List(ctx context.Context, server *domain.ROMServer, platform string) ([]port.RemoteFile, error) {
	url := server.URLFor(platform, "")
	if url == "" {
		return nil, fmt.Errorf("server %s has no path for platform %s", server.Name, platform)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	applyHeaders(req, server)

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing failed: status %d from %s", resp.StatusCode, server.Name)
	}

	var raw []listingEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	files := make([]port.RemoteFile, 0, len(raw))
	for _, entry := range raw {
		if entry.Type != "" && entry.Type != "file" {
			continue
		}
		files = append(files, port.RemoteFile{Name: entry.Name, Size: entry.Size})
	}
	return files, nil
}

func applyHeaders(req *http.Request, server *domain.ROMServer) {
	for k, v := range server.AuthHeaders {
		req.Header.Set(k, v)
	}
}
