// Package codec turns record batches into immutable chunk payloads and
// back. Codecs are selected through an explicit registry keyed by
// serialization format string, populated at process start.
package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Codec encodes and decodes one chunk payload.
type Codec interface {
	// Format returns the serialization format this codec serves.
	Format() types.SerializationFormat

	// Encode serializes a record batch into a single chunk payload.
	Encode(schema *types.Schema, records []types.Record) ([]byte, error)

	// NewDecoder returns a streaming decoder over a chunk payload.
	NewDecoder(schema *types.Schema, r io.Reader) (Decoder, error)
}

// Decoder iterates the records of one chunk. Next returns io.EOF after
// the last record.
type Decoder interface {
	Next() (types.Record, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[types.SerializationFormat]Codec)
)

// Register installs a codec for its format. Later registrations replace
// earlier ones; called from init only.
func Register(c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Format()] = c
}

// ForFormat returns the codec registered for a serialization format.
func ForFormat(format types.SerializationFormat) (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[format]
	if !ok {
		return nil, errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("no codec registered for format %q", format))
	}
	return c, nil
}

func init() {
	Register(&rowCodec{format: types.FormatDefault, compress: true})
	Register(&rowCodec{format: types.FormatRagged, compress: true})
	// Image payloads are already compressed; snappy would only add CPU.
	Register(&rowCodec{format: types.FormatImage, compress: false})
}
