package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"hlswatch/core/dispatch"
	"hlswatch/logger"

	"github.com/minio/minio-go/v7"
)

const segmentPrefix = "segments/"

// Archiver uploads the media file behind each dispatched segment.
type Archiver struct {
	client *minio.Client
	bucket string
	root   string
}

// NewArchiver keys objects by playlist path relative to root, so streams in
// different directories never share an object.
func NewArchiver(client *minio.Client, bucket, root string) *Archiver {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Archiver{client: client, bucket: bucket, root: root}
}

// Dispatch uploads the segment file. Segments that are not local files are skipped,
// and so is a file that has already been removed by the packager.
func (a *Archiver) Dispatch(ctx context.Context, u dispatch.Unit) error {
	local, ok := localSegmentPath(u.Playlist, u.Segment.URI)
	if !ok {
		logger.Debug("segment is not a local file, not archiving",
			logger.Path(u.Playlist),
			logger.String("uri", u.Segment.URI))
		return nil
	}

	object := objectName(a.root, u.Playlist, local)
	info, err := a.client.FPutObject(ctx, a.bucket, object, local, minio.PutObjectOptions{
		ContentType: contentType(local),
		UserMetadata: map[string]string{
			"playlist": filepath.Base(u.Playlist),
			"uri":      u.Segment.URI,
		},
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("segment file vanished before upload", logger.Path(local))
			return nil
		}
		return fmt.Errorf("upload %s: %w", object, err)
	}

	logger.Debug("segment archived",
		logger.String("object", object),
		logger.Int64("size", info.Size))
	return nil
}

// localSegmentPath resolves uri against the playlist's directory. Absolute URLs are not local.
func localSegmentPath(playlistPath, uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := filepath.FromSlash(u.Path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(playlistPath), p)
	}
	return filepath.Clean(p), true
}

// objectName is segments/<playlist path under root, without extension>/<segment file name>.
// A playlist outside root falls back to its absolute path.
func objectName(root, playlistPath, segmentPath string) string {
	rel, err := filepath.Rel(root, playlistPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = strings.TrimPrefix(filepath.Clean(playlistPath), string(filepath.Separator))
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return path.Join(segmentPrefix, filepath.ToSlash(rel), filepath.Base(segmentPath))
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts":
		return "video/MP2T"
	case ".m4s", ".mp4":
		return "video/mp4"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
