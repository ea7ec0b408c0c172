package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/urlx"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// Kind is the downloader failure taxonomy. The orchestrator folds every
// kind except unsupported into download_failed.
type Kind string

const (
	KindUnsupported Kind = "unsupported"
	KindNotFound    Kind = "not_found"
	KindAuth        Kind = "auth"
	KindNetwork     Kind = "network"
	KindDecode      Kind = "decode"
)

type Error struct {
	Kind    Kind
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s: %s: %s", e.Kind, e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Metadata is the platform-provided context attached to a post, forwarded
// to the analyzer prompt.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Uploader    string
	ItemCount   int
}

// Result holds one downloaded post. MediaFiles is ordered; for carousels
// the order matches the on-platform item order and drives carousel_index.
type Result struct {
	MediaFiles []string
	Metadata   Metadata
	TempDir    string
}

// Downloader fetches media for one platform family. Output is untrusted:
// the orchestrator probes every file before using it.
type Downloader interface {
	Platform() urlx.Platform
	Download(ctx context.Context, rawURL string, destDir string) (*Result, error)
}

// Registry resolves the downloader variant for a URL.
type Registry struct {
	log        *logger.Logger
	byPlatform map[urlx.Platform]Downloader
}

func NewRegistry(log *logger.Logger, downloaders ...Downloader) *Registry {
	regLog := log.With("component", "DownloadRegistry")
	byPlatform := make(map[urlx.Platform]Downloader, len(downloaders))
	for _, d := range downloaders {
		byPlatform[d.Platform()] = d
	}
	return &Registry{log: regLog, byPlatform: byPlatform}
}

func (r *Registry) ForURL(rawURL string) (Downloader, error) {
	platform := urlx.PlatformOf(rawURL)
	d, ok := r.byPlatform[platform]
	if !ok {
		return nil, &Error{
			Kind:    KindUnsupported,
			URL:     rawURL,
			Message: fmt.Sprintf("no downloader registered for platform %q", platform),
		}
	}
	return d, nil
}

// KindOf maps any error from this package to its taxonomy kind; unknown
// errors count as network failures since that is the dominant cause.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindNetwork
}
