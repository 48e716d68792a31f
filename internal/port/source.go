package port

import (
	"context"
	"io"

	"github.com/retroplay/rom-cache/internal/domain"
)

// RemoteFile describes one entry in a server's platform listing.
type RemoteFile struct {
	Name string
	Size int64
}

// SourceClient talks to remote ROM servers over HTTP.
type SourceClient interface {
	// Probe issues a lightweight existence check against the candidate URL
	// using a short bounded timeout. A false result with nil error means
	// the server answered but does not have the file.
	Probe(ctx context.Context, server *domain.ROMServer, platform, filename string) (bool, error)

	// Fetch opens the bulk transfer. The returned length is the advertised
	// Content-Length, or -1 when absent; it is a pre-flight hint only and
	// never a reason to abort the transfer.
	Fetch(ctx context.Context, server *domain.ROMServer, platform, filename string) (io.ReadCloser, int64, error)

	// List fetches the server's directory listing for a platform.
	List(ctx context.Context, server *domain.ROMServer, platform string) ([]RemoteFile, error)
}
