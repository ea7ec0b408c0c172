package download

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/urlx"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/utils"
)

// ytdlpDownloader shells out to yt-dlp. One binary covers every platform
// family we support; variants differ only in platform tag and extra args
// (cookies for Instagram). Multi-item posts come back as a playlist, so
// the output template zero-pads playlist_index to keep item order stable
// under lexicographic sort.
type ytdlpDownloader struct {
	log       *logger.Logger
	platform  urlx.Platform
	binPath   string
	extraArgs []string
	timeout   time.Duration
}

// ytdlpBin resolves the tool path once per constructed downloader so a
// deploy can pin a specific binary without touching PATH.
func ytdlpBin(log *logger.Logger) string {
	return utils.GetEnv("YTDLP_PATH", "yt-dlp", log)
}

func NewYouTubeDownloader(log *logger.Logger) Downloader {
	dlLog := log.With("downloader", "youtube")
	return &ytdlpDownloader{
		log:      dlLog,
		platform: urlx.PlatformYouTube,
		binPath:  ytdlpBin(dlLog),
		timeout:  5 * time.Minute,
	}
}

func NewTikTokDownloader(log *logger.Logger) Downloader {
	dlLog := log.With("downloader", "tiktok")
	return &ytdlpDownloader{
		log:      dlLog,
		platform: urlx.PlatformTikTok,
		binPath:  ytdlpBin(dlLog),
		timeout:  5 * time.Minute,
	}
}

func (d *ytdlpDownloader) Platform() urlx.Platform {
	return d.platform
}

func (d *ytdlpDownloader) Download(ctx context.Context, rawURL string, destDir string) (*Result, error) {
	if destDir == "" {
		return nil, &Error{Kind: KindDecode, URL: rawURL, Message: "destDir required"}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &Error{Kind: KindDecode, URL: rawURL, Message: "create dest dir", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outTemplate := filepath.Join(destDir, "media_%(playlist_index|0)03d.%(ext)s")
	args := []string{
		"--no-warnings",
		"--restrict-filenames",
		"--write-info-json",
		"-f", "mp4/bestvideo*+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", outTemplate,
	}
	args = append(args, d.extraArgs...)
	args = append(args, rawURL)

	d.log.Debug("Running yt-dlp", "url", rawURL, "dest", destDir)
	cmd := exec.CommandContext(ctx, d.binPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, classifyToolFailure(rawURL, err, string(out))
	}

	mediaFiles, err := collectMedia(destDir)
	if err != nil {
		return nil, &Error{Kind: KindDecode, URL: rawURL, Message: "scan downloads", Cause: err}
	}
	if len(mediaFiles) == 0 {
		return nil, &Error{Kind: KindDecode, URL: rawURL, Message: "tool succeeded but produced no media files"}
	}

	meta := readInfoMetadata(destDir)
	if meta.ItemCount == 0 {
		meta.ItemCount = len(mediaFiles)
	}
	d.log.Info("Download complete", "url", rawURL, "files", len(mediaFiles))
	return &Result{MediaFiles: mediaFiles, Metadata: meta, TempDir: destDir}, nil
}

var mediaFilePattern = regexp.MustCompile(`^media_\d+\.(mp4|mov|webm|mkv|m4v)$`)

func collectMedia(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if mediaFilePattern.MatchString(strings.ToLower(e.Name())) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

type ytdlpInfoJSON struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Uploader      string   `json:"uploader"`
	PlaylistCount int      `json:"playlist_count"`
}

// readInfoMetadata folds the sidecar info jsons into one Metadata. The
// first sidecar wins for text fields; playlist_count wins for item count.
func readInfoMetadata(dir string) Metadata {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Metadata{}
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".info.json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var meta Metadata
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var info ytdlpInfoJSON
		if err := json.Unmarshal(raw, &info); err != nil {
			continue
		}
		if meta.Title == "" {
			meta.Title = info.Title
		}
		if meta.Description == "" {
			meta.Description = info.Description
		}
		if len(meta.Tags) == 0 {
			meta.Tags = info.Tags
		}
		if meta.Uploader == "" {
			meta.Uploader = info.Uploader
		}
		if info.PlaylistCount > meta.ItemCount {
			meta.ItemCount = info.PlaylistCount
		}
	}
	return meta
}

// classifyToolFailure buckets a yt-dlp exit into the failure taxonomy by
// scanning its combined output.
func classifyToolFailure(rawURL string, cause error, out string) *Error {
	lower := strings.ToLower(out)
	kind := KindNetwork
	switch {
	case strings.Contains(lower, "unsupported url"):
		kind = KindUnsupported
	case strings.Contains(lower, "404"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "no longer available"),
		strings.Contains(lower, "video unavailable"):
		kind = KindNotFound
	case strings.Contains(lower, "login required"),
		strings.Contains(lower, "requested content is not available"),
		strings.Contains(lower, "rate-limit reached"),
		strings.Contains(lower, "private"),
		strings.Contains(lower, "use --cookies"),
		strings.Contains(lower, "403"):
		kind = KindAuth
	case strings.Contains(lower, "unable to extract"),
		strings.Contains(lower, "error opening"),
		strings.Contains(lower, "postprocessing"):
		kind = KindDecode
	}
	msg := firstErrorLine(out)
	if msg == "" {
		msg = cause.Error()
	}
	return &Error{Kind: kind, URL: rawURL, Message: msg, Cause: fmt.Errorf("yt-dlp: %w", cause)}
}

func firstErrorLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "error") {
			if len(line) > 300 {
				line = line[:300]
			}
			return line
		}
	}
	return ""
}
