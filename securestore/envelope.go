package securestore

import (
	"time"
)

// envelopeSchemaVersion guards future envelope migrations: a version bump
// changes the wire shape without silently corrupting checksums.
const envelopeSchemaVersion = 1

// Envelope is the encrypted-plus-checksum wrapper around every persisted
// value. The checksum is an HMAC-SHA256 over the plaintext, so a read can
// prove the decrypted bytes are the ones originally written.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	Data          []byte    `json:"data"`
	Checksum      []byte    `json:"checksum"`
	Timestamp     time.Time `json:"timestamp"`
}
