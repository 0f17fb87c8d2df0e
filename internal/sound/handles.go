/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sound

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

type clip struct {
	data        []byte
	contentType string
}

// Handles serves in-memory clip bytes under short-lived, unguessable
// paths. A handle lives from Create until Release.
type Handles struct {
	prefix string

	mu    sync.RWMutex
	clips map[string]clip
}

// NewHandles returns a store whose URLs start with prefix, e.g. "/clips/".
func NewHandles(prefix string) *Handles {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Handles{
		prefix: prefix,
		clips:  make(map[string]clip),
	}
}

func (h *Handles) Create(data []byte, contentType string) string {
	token := uuid.NewString()

	h.mu.Lock()
	h.clips[token] = clip{data: data, contentType: contentType}
	h.mu.Unlock()

	return token
}

func (h *Handles) URL(token string) string {
	return h.prefix + token
}

func (h *Handles) Lookup(token string) ([]byte, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clips[token]

	return c.data, c.contentType, ok
}

func (h *Handles) Release(token string) {
	h.mu.Lock()
	delete(h.clips, token)
	h.mu.Unlock()
}
