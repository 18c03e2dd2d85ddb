package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/state"
)

// FileChannel writes the report pair to the reports directory. Both files are
// written atomically so a reader never sees a partial report.
type FileChannel struct {
	dir string
}

// NewFileChannel creates the file channel rooted at dir.
func NewFileChannel(dir string) *FileChannel {
	return &FileChannel{dir: dir}
}

// Name identifies the channel in logs.
func (c *FileChannel) Name() string { return "file" }

// Deliver writes <timestamp>-<site>.html and .txt into the reports dir.
func (c *FileChannel) Deliver(ctx context.Context, r Rendered) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeDelivery, "file_deliver", "", err)
	}

	stem := fmt.Sprintf("%s-%s",
		r.Report.GeneratedAt.UTC().Format("20060102-150405"),
		slugify(r.Report.Site))

	htmlPath := filepath.Join(c.dir, stem+".html")
	if err := state.WriteFileAtomic(htmlPath, []byte(r.HTML), 0o644); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeDelivery, "file_deliver", "", err)
	}
	textPath := filepath.Join(c.dir, stem+".txt")
	if err := state.WriteFileAtomic(textPath, []byte(r.Text), 0o644); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeDelivery, "file_deliver", "", err)
	}

	log.Debug().Str("html", htmlPath).Str("text", textPath).Msg("Report files written")
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// slugify makes a site name filesystem-safe.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "site"
	}
	return s
}
