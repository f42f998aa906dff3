package types

// SerializationFormat is the chunk encoding hint carried by every topic.
// It selects the codec and the flush policy of the chunk writer.
type SerializationFormat string

const (
	// FormatDefault batches fixed-shape records; flushes by record count.
	FormatDefault SerializationFormat = "default"

	// FormatRagged batches variable-shape records (e.g. point clouds);
	// flushes by record count.
	FormatRagged SerializationFormat = "ragged"

	// FormatImage batches byte-heavy payloads; flushes by buffered bytes
	// since record count is a poor proxy for memory use.
	FormatImage SerializationFormat = "image"
)

// Valid reports whether the format is one of the known encodings.
func (f SerializationFormat) Valid() bool {
	switch f {
	case FormatDefault, FormatRagged, FormatImage:
		return true
	}
	return false
}

// FlushByBytes reports whether the chunk writer should trigger flushes on
// buffered byte size instead of record count.
func (f SerializationFormat) FlushByBytes() bool {
	return f == FormatImage
}
