package protocol

import (
	"encoding/base64"
	"fmt"
)

// DefaultChunkSize is the advisory chunk size handed to uploading clients and
// used for download streaming.
const DefaultChunkSize = 4096

// EncodeChunk encodes raw bundle bytes as standard base64 for transport
// inside a JSON field.
func EncodeChunk(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeChunk decodes a base64 chunk field back to raw bytes.
func DecodeChunk(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}
	return raw, nil
}
