package objectstore

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	. "github.com/weberc2/easyfs/pkg/types"
)

const (
	// ContentType marks the objects written by `PutImage`; `ListImages`
	// skips everything else under a prefix.
	ContentType = "application/vnd.easyfs.image"

	ErrImageNotFound ConstError = "image not found"
	ErrNotImage      ConstError = "object is not a volume image"
)

// Image describes a volume image held under `Key`.
type Image struct {
	Key string `json:"key"`

	// Blocks is the volume size. Offset is the number of blocks preceding
	// the volume in the image file.
	Blocks uint32 `json:"blocks"`
	Offset uint32 `json:"offset"`

	// Stored is the object size after compression. Set by the store.
	Stored   int64     `json:"stored,omitempty"`
	Modified time.Time `json:"modified,omitempty"`
}

// ImageStore is where volume images are pushed to and pulled from.
type ImageStore interface {
	PutImage(ctx context.Context, bucket string, image Image, body io.ReadSeeker) error
	GetImage(ctx context.Context, bucket, key string) (Image, io.ReadCloser, error)
	ListImages(ctx context.Context, bucket, prefix string) ([]Image, error)
	DeleteImage(ctx context.Context, bucket, key string) error
}

var (
	_ ImageStore = (*S3ImageStore)(nil)
	_ ImageStore = MemoryImageStore{}
)

func imageNotFound(bucket, key string) error {
	return fmt.Errorf("image `%s` in bucket `%s`: %w", key, bucket, ErrImageNotFound)
}

const (
	metaBlocks      = "Efs-Blocks"
	metaOffset      = "Efs-Offset"
	metaCompression = "Efs-Compression"

	compressionGzip = "gzip"
)

func (image *Image) metadata(compression string) map[string]*string {
	metadata := map[string]*string{
		metaBlocks: aws.String(strconv.FormatUint(uint64(image.Blocks), 10)),
		metaOffset: aws.String(strconv.FormatUint(uint64(image.Offset), 10)),
	}
	if compression != "" {
		metadata[metaCompression] = aws.String(compression)
	}
	return metadata
}

// parseMetadata recovers the geometry and compression recorded by
// `metadata`. Keys match case-insensitively since S3 canonicalizes them.
func parseMetadata(
	image *Image,
	metadata map[string]*string,
) (compression string, err error) {
	found := 0
	for k, v := range metadata {
		if v == nil {
			continue
		}
		switch {
		case strings.EqualFold(k, metaBlocks):
			if image.Blocks, err = parseBlocks(*v); err != nil {
				return "", fmt.Errorf("image `%s`: blocks: %w", image.Key, err)
			}
			found++
		case strings.EqualFold(k, metaOffset):
			if image.Offset, err = parseBlocks(*v); err != nil {
				return "", fmt.Errorf("image `%s`: offset: %w", image.Key, err)
			}
			found++
		case strings.EqualFold(k, metaCompression):
			compression = *v
		}
	}
	if found != 2 {
		return "", fmt.Errorf(
			"image `%s`: missing geometry metadata: %w",
			image.Key,
			ErrNotImage,
		)
	}
	return compression, nil
}

func parseBlocks(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing `%s`: %w", s, ErrNotImage)
	}
	return uint32(n), nil
}
