package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/storage"
)

// Publisher defines the interface for delivering a feed
type Publisher interface {
	// Publish delivers the serialized feed
	Publish(ctx context.Context, feed []byte) error
}

// FilePublisher writes the feed to a file
type FilePublisher struct {
	path string
}

// NewFilePublisher creates a publisher for path. Missing parent directories
// are created on first publish.
func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

// Path returns the output path.
func (p *FilePublisher) Path() string {
	return p.path
}

// Publish replaces the output file with feed.
func (p *FilePublisher) Publish(ctx context.Context, feed []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(feed) == 0 {
		return errors.Newf("refusing to publish an empty feed to %s", p.path)
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "creating output directory")
		}
	}
	if err := storage.WriteFileAtomic(p.path, feed); err != nil {
		return errors.Wrap(err, "publishing feed")
	}

	logger.Info("Feed published", logger.Fields{"path": p.path, "bytes": len(feed)})
	logger.IncrCounter("publish.files")
	return nil
}

// DryRunPublisher prints what would be published without writing it
type DryRunPublisher struct {
	out io.Writer
}

// NewDryRunPublisher creates a new dry-run publisher writing to out
func NewDryRunPublisher(out io.Writer) *DryRunPublisher {
	if out == nil {
		out = os.Stdout
	}
	return &DryRunPublisher{out: out}
}

// Publish prints the feed
func (p *DryRunPublisher) Publish(_ context.Context, feed []byte) error {
	if _, err := p.out.Write(feed); err != nil {
		return errors.Wrap(err, "writing feed")
	}
	_, err := fmt.Fprintf(p.out, "\n(Length: %d bytes)\n", len(feed))
	return err
}
