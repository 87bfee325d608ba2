package objectstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
)

type storedImage struct {
	image Image
	data  []byte
}

// MemoryImageStore keeps images in memory, keyed by bucket and key.
type MemoryImageStore map[[2]string]storedImage

func (store MemoryImageStore) PutImage(
	ctx context.Context,
	bucket string,
	image Image,
	body io.ReadSeeker,
) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	image.Stored = int64(len(data))
	store[[2]string{bucket, image.Key}] = storedImage{image: image, data: data}
	return nil
}

func (store MemoryImageStore) GetImage(
	ctx context.Context,
	bucket string,
	key string,
) (Image, io.ReadCloser, error) {
	stored, found := store[[2]string{bucket, key}]
	if !found {
		return Image{Key: key}, nil, imageNotFound(bucket, key)
	}
	return stored.image, io.NopCloser(bytes.NewReader(stored.data)), nil
}

func (store MemoryImageStore) ListImages(
	ctx context.Context,
	bucket string,
	prefix string,
) ([]Image, error) {
	var images []Image
	for k, stored := range store {
		if k[0] == bucket && strings.HasPrefix(k[1], prefix) {
			images = append(images, stored.image)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].Key < images[j].Key
	})
	return images, nil
}

func (store MemoryImageStore) DeleteImage(
	ctx context.Context,
	bucket string,
	key string,
) error {
	k := [2]string{bucket, key}
	if _, found := store[k]; !found {
		return imageNotFound(bucket, key)
	}
	delete(store, k)
	return nil
}
