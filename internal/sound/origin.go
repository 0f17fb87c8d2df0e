/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sound

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/earwax/internal/catalog"
)

// maxClipSize bounds a single fetched clip.
const maxClipSize = 16 << 20

// Origin is where uncached clips come from.
type Origin interface {
	Fetch(ctx context.Context, id catalog.ID) ([]byte, error)
	// Online reports whether a fetch is worth attempting right now.
	Online() bool
}

// MediaURL joins the media root and a clip's relative path.
func MediaURL(base string, id catalog.ID) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")

	return base + "/" + catalog.MediaPath(id)
}

// HTTPOrigin fetches clips over HTTP. After a network failure it reports
// itself offline for a cooldown period, so a dead origin does not stall
// every play.
type HTTPOrigin struct {
	base     string
	client   *http.Client
	cooldown time.Duration

	mu         sync.Mutex
	failedAt   time.Time
	lastFailed bool
}

func NewHTTPOrigin(base string, client *http.Client) *HTTPOrigin {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &HTTPOrigin{
		base:     base,
		client:   client,
		cooldown: 15 * time.Second,
	}
}

func (o *HTTPOrigin) Fetch(ctx context.Context, id catalog.ID) ([]byte, error) {
	data, err := o.fetch(ctx, MediaURL(o.base, id))

	o.mu.Lock()
	o.lastFailed = err != nil
	if err != nil {
		o.failedAt = time.Now()
	}
	o.mu.Unlock()

	return data, err
}

func (o *HTTPOrigin) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxClipSize {
		return nil, fmt.Errorf("fetch %s: clip exceeds %d bytes", url, maxClipSize)
	}

	return data, nil
}

func (o *HTTPOrigin) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return !o.lastFailed || time.Since(o.failedAt) >= o.cooldown
}

// DirOrigin reads clips from a local media tree laid out as Audio/<id>.ogg.
type DirOrigin struct {
	fsys fs.FS
}

func NewDirOrigin(fsys fs.FS) *DirOrigin {
	return &DirOrigin{fsys: fsys}
}

func (o *DirOrigin) Fetch(ctx context.Context, id catalog.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return fs.ReadFile(o.fsys, catalog.MediaPath(id))
}

func (o *DirOrigin) Online() bool {
	return true
}
