package usersync

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	"github.com/ecdemo/backend/internal/domain/shared"
)

// Compression kicks in only when the JSON payload exceeds this size and
// gzip actually shrinks it below compressionRatioMax of the original.
const (
	compressionThreshold = 1024
	compressionRatioMax  = 0.8
)

// Payload is a wire-ready export: JSON, optionally gzip-compressed.
type Payload struct {
	Body       []byte
	Compressed bool
}

// EncodePayload serializes an export for transfer. Small or
// poorly-compressible payloads go uncompressed; the flag tells the receiver
// which form it got.
func EncodePayload(data *ExportData) (Payload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Payload{}, err
	}
	if len(raw) <= compressionThreshold {
		return Payload{Body: raw}, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return Payload{}, err
	}
	if err := zw.Close(); err != nil {
		return Payload{}, err
	}

	if float64(buf.Len()) >= compressionRatioMax*float64(len(raw)) {
		return Payload{Body: raw}, nil
	}
	return Payload{Body: buf.Bytes(), Compressed: true}, nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(p Payload) (*ExportData, error) {
	body := p.Body
	if p.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "payload is not valid gzip")
		}
		defer zr.Close()
		body, err = io.ReadAll(zr)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "payload is truncated")
		}
	}

	var data ExportData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "payload is not a valid export")
	}
	return &data, nil
}
