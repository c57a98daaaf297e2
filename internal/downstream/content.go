package downstream

import (
	"errors"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/wsuscatalog/wsuscatalog/internal/contentstore"
)

// handleContent serves GET/HEAD /microsoftupdate/content/<shard>/<hex+ext>
// with range support. Returns 404 when no content store
// is configured (catalog-only sync) or the digest isn't on disk.
func (srv *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeSoapFault(w, http.StatusMethodNotAllowed, "GET or HEAD required")
		return
	}

	srv.mu.RLock()
	content := srv.content
	srv.mu.RUnlock()
	if content == nil {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, ContentPrefix)
	shard, leaf, ok := strings.Cut(rest, "/")
	if !ok || shard == "" || leaf == "" {
		http.NotFound(w, r)
		return
	}

	hexDigest := strings.TrimSuffix(leaf, path.Ext(leaf))
	file, _, err := content.OpenByShardAndHex(shard, hexDigest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		writeSoapFault(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentstore.ServeHTTP(w, r, file, leaf)
}
