package objectstore

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compress gzips `body` into memory. Images are mostly zeroed blocks, so
// even full volumes shrink to a small fraction of their size.
func compress(body io.Reader) (*bytes.Reader, error) {
	var b bytes.Buffer
	w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("compressing image: %w", err)
	}
	if _, err := io.Copy(w, body); err != nil {
		return nil, fmt.Errorf("compressing image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing image: %w", err)
	}
	return bytes.NewReader(b.Bytes()), nil
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (b *gzipBody) Close() error {
	err := b.Reader.Close()
	if closeErr := b.body.Close(); err == nil {
		err = closeErr
	}
	return err
}

// decompress wraps `body` according to the compression recorded for the
// image. It takes ownership of `body`.
func decompress(body io.ReadCloser, compression string) (io.ReadCloser, error) {
	switch compression {
	case "":
		return body, nil
	case compressionGzip:
		r, err := gzip.NewReader(body)
		if err != nil {
			body.Close()
			return nil, fmt.Errorf("decompressing image: %w", err)
		}
		return &gzipBody{Reader: r, body: body}, nil
	default:
		body.Close()
		return nil, fmt.Errorf(
			"unsupported compression `%s`: %w",
			compression,
			ErrNotImage,
		)
	}
}
