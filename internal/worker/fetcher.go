package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var ErrFetch = errors.New("yt-dlp failed")

// Fetcher resolves metadata and audio for a video URL.
type Fetcher interface {
	Meta(ctx context.Context, url string) (title string, err error)
	Download(ctx context.Context, url, dest string) error
}

// YTDLP shells out to the yt-dlp binary.
type YTDLP struct {
	Binary string
}

func (y YTDLP) binary() string {
	if y.Binary == "" {
		return "yt-dlp"
	}
	return y.Binary
}

func (y YTDLP) Meta(ctx context.Context, url string) (string, error) {
	cmd := exec.CommandContext(ctx, y.binary(), "--quiet", "--skip-download", "--dump-json", url)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetch, cmd, err)
	}
	var result struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return "", fmt.Errorf("%w: decode metadata: %v", ErrFetch, err)
	}
	return result.Title, nil
}

// Download writes the audio track for url to dest as mp3. An existing
// dest is left alone.
func (y YTDLP) Download(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, y.binary(), "--quiet", "--extract-audio", "--audio-format", "mp3", "-o", dest, url)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrFetch, cmd, err, out)
	}
	return nil
}
