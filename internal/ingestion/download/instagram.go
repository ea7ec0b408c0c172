package download

import (
	"time"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/urlx"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// NewInstagramDownloader builds the Instagram variant. Instagram throttles
// anonymous requests aggressively, so a browser cookies export can be
// passed through; carousels arrive as yt-dlp playlists and keep their
// on-platform item order via the shared output template.
func NewInstagramDownloader(log *logger.Logger, cookiesFile string) Downloader {
	extra := []string{}
	if cookiesFile != "" {
		extra = append(extra, "--cookies", cookiesFile)
	}
	dlLog := log.With("downloader", "instagram")
	return &ytdlpDownloader{
		log:       dlLog,
		platform:  urlx.PlatformInstagram,
		binPath:   ytdlpBin(dlLog),
		extraArgs: extra,
		timeout:   5 * time.Minute,
	}
}
