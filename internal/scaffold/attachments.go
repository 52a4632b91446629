package scaffold

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Attachment is a decoded request attachment.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}

// ParseDataURI decodes a data: URI of the form
// data:<mime>;base64,<payload>. Only base64 payloads are supported.
func ParseDataURI(uri string) (Attachment, error) {
	if !strings.HasPrefix(uri, "data:") {
		return Attachment{}, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return Attachment{}, fmt.Errorf("malformed data URI: no payload separator")
	}

	meta := strings.TrimPrefix(header, "data:")
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return Attachment{}, fmt.Errorf("unsupported data URI encoding %q", enc)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Attachment{}, fmt.Errorf("decode data URI payload: %w", err)
	}
	return Attachment{MIME: mime, Data: data}, nil
}
