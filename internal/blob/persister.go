package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	imageDir         = "images"
	defaultExtension = "png"
)

// ErrInvalidImagePayload is returned when the payload is not decodable base64 image data
var ErrInvalidImagePayload = errors.New("invalid image payload")

var dataURIPrefix = regexp.MustCompile(`^data:image/(\w+);base64,`)

// StoredImage describes where a persisted image lives.
// Dir is always nil: images are addressed by filename under the images prefix.
type StoredImage struct {
	Dir      *string `json:"dir"`
	Filename string  `json:"image"`
	URL      string  `json:"url"`
}

// ImagePersister decodes base64 chart images and writes them to blob storage
type ImagePersister struct {
	store Store
}

// NewImagePersister creates a new ImagePersister
func NewImagePersister(store Store) *ImagePersister {
	return &ImagePersister{store: store}
}

// Persist decodes payload, optionally prefixed with a data URI header, and stores it
// under a fresh unique filename
func (p *ImagePersister) Persist(ctx context.Context, payload string) (*StoredImage, error) {
	payload = strings.TrimSpace(payload)
	ext := defaultExtension
	if m := dataURIPrefix.FindStringSubmatch(payload); m != nil {
		ext = strings.ToLower(m[1])
		payload = payload[len(m[0]):]
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}

	filename := uuid.NewString() + "." + ext
	if err := p.store.Put(ctx, p.Key(filename), data, "image/"+ext); err != nil {
		return nil, fmt.Errorf("failed to store image %s: %w", filename, err)
	}

	return &StoredImage{
		Dir:      nil,
		Filename: filename,
		URL:      p.URL(filename),
	}, nil
}

// Key is the storage key of a persisted image filename
func (p *ImagePersister) Key(filename string) string {
	return imageDir + "/" + filename
}

// URL is the public link of a persisted image filename
func (p *ImagePersister) URL(filename string) string {
	return p.store.URL(p.Key(filename))
}

func decodeBase64(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidImagePayload)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImagePayload, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidImagePayload)
	}
	return data, nil
}
