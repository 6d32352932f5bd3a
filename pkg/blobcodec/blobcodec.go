// Package blobcodec converts binary payloads to and from the base64 text
// carried inside backup documents.
package blobcodec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// DefaultMediaType is declared for payloads whose type is unknown.
const DefaultMediaType = "application/octet-stream"

// ErrMalformedEncoding is returned by Decode for text outside the base64
// alphabet or with broken padding.
var ErrMalformedEncoding = errors.New("malformed blob encoding")

// Encoded is a text-safe payload together with its declared media type.
type Encoded struct {
	Text      string
	MediaType string
}

// Encode returns the standard base64 form of payload.
func Encode(payload []byte, mediaType string) Encoded {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	return Encoded{
		Text:      base64.StdEncoding.EncodeToString(payload),
		MediaType: mediaType,
	}
}

// Decode is the inverse of Encode. The media type is carried alongside the
// bytes by callers and does not affect decoding.
func Decode(text, mediaType string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrMalformedEncoding, mediaTypeOrDefault(mediaType), err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func mediaTypeOrDefault(mediaType string) string {
	if mediaType == "" {
		return DefaultMediaType
	}
	return mediaType
}
