package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3ImageStore keeps images in S3 or any S3-compatible service. The volume
// geometry travels as object metadata.
type S3ImageStore struct {
	Client s3iface.S3API

	// Compress gzips images on upload. Downloads follow the recorded
	// compression either way.
	Compress bool
}

func isNotFound(err error) bool {
	var failure awserr.RequestFailure
	if errors.As(err, &failure) && failure.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey
}

func (store *S3ImageStore) PutImage(
	ctx context.Context,
	bucket string,
	image Image,
	body io.ReadSeeker,
) error {
	var compression string
	if store.Compress {
		compressed, err := compress(body)
		if err != nil {
			return fmt.Errorf("putting image `%s`: %w", image.Key, err)
		}
		body, compression = compressed, compressionGzip
	}
	if _, err := store.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(image.Key),
		Body:        body,
		ContentType: aws.String(ContentType),
		Metadata:    image.metadata(compression),
	}); err != nil {
		return fmt.Errorf(
			"putting image `%s` in bucket `%s`: %w",
			image.Key,
			bucket,
			err,
		)
	}
	return nil
}

func (store *S3ImageStore) GetImage(
	ctx context.Context,
	bucket string,
	key string,
) (Image, io.ReadCloser, error) {
	image := Image{Key: key}
	rsp, err := store.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return image, nil, imageNotFound(bucket, key)
		}
		return image, nil, fmt.Errorf(
			"getting image `%s` from bucket `%s`: %w",
			key,
			bucket,
			err,
		)
	}
	compression, err := parseMetadata(&image, rsp.Metadata)
	if err != nil {
		rsp.Body.Close()
		return image, nil, err
	}
	image.Stored = aws.Int64Value(rsp.ContentLength)
	image.Modified = aws.TimeValue(rsp.LastModified)
	body, err := decompress(rsp.Body, compression)
	if err != nil {
		return image, nil, fmt.Errorf("getting image `%s`: %w", key, err)
	}
	return image, body, nil
}

// ListImages describes every image under `prefix`, skipping objects that
// `PutImage` did not write.
func (store *S3ImageStore) ListImages(
	ctx context.Context,
	bucket string,
	prefix string,
) ([]Image, error) {
	var keys []string
	if err := store.Client.ListObjectsV2PagesWithContext(
		ctx,
		&s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, object := range page.Contents {
				keys = append(keys, aws.StringValue(object.Key))
			}
			return true
		},
	); err != nil {
		return nil, fmt.Errorf(
			"listing images in bucket `%s` under `%s`: %w",
			bucket,
			prefix,
			err,
		)
	}

	images := make([]Image, 0, len(keys))
	for _, key := range keys {
		image, err := store.head(ctx, bucket, key)
		if errors.Is(err, ErrNotImage) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing images in bucket `%s`: %w", bucket, err)
		}
		images = append(images, image)
	}
	return images, nil
}

func (store *S3ImageStore) head(
	ctx context.Context,
	bucket string,
	key string,
) (Image, error) {
	image := Image{Key: key}
	rsp, err := store.Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return image, imageNotFound(bucket, key)
		}
		return image, fmt.Errorf("inspecting image `%s`: %w", key, err)
	}
	if aws.StringValue(rsp.ContentType) != ContentType {
		return image, fmt.Errorf("object `%s`: %w", key, ErrNotImage)
	}
	if _, err := parseMetadata(&image, rsp.Metadata); err != nil {
		return image, err
	}
	image.Stored = aws.Int64Value(rsp.ContentLength)
	image.Modified = aws.TimeValue(rsp.LastModified)
	return image, nil
}

// DeleteImage removes the image at `key`. S3 deletes are idempotent, so
// the image is looked up first to report `ErrImageNotFound`.
func (store *S3ImageStore) DeleteImage(
	ctx context.Context,
	bucket string,
	key string,
) error {
	if _, err := store.head(ctx, bucket, key); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	if _, err := store.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf(
			"deleting image `%s` from bucket `%s`: %w",
			key,
			bucket,
			err,
		)
	}
	return nil
}
