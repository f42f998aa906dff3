package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Chunk payload layout: a 6-byte header (magic, version, flags) followed
// by length-prefixed blocks. Each block holds length-prefixed records
// encoded with protowire; field 1 is the timestamp, column i maps to
// field i+2, and an absent field is a null cell. Blocks are individually
// snappy-compressed when the codec's compress flag is set, so a decoder
// never needs more than one block in memory.
var chunkMagic = [4]byte{'M', 'C', 'H', 'K'}

const (
	chunkVersion = 1

	flagSnappy = 0x01

	// Block limits bound decoder memory per page fetch.
	blockMaxRecords = 512
	blockMaxBytes   = 1 << 20
)

const timestampField = protowire.Number(1)

type rowCodec struct {
	format   types.SerializationFormat
	compress bool
}

func (c *rowCodec) Format() types.SerializationFormat { return c.format }

func (c *rowCodec) Encode(schema *types.Schema, records []types.Record) ([]byte, error) {
	out := make([]byte, 0, 6+len(records)*32)
	out = append(out, chunkMagic[:]...)
	out = append(out, chunkVersion)
	var flags byte
	if c.compress {
		flags |= flagSnappy
	}
	out = append(out, flags)

	var block []byte
	blockRecords := 0
	flush := func() {
		if blockRecords == 0 {
			return
		}
		payload := block
		if c.compress {
			payload = snappy.Encode(nil, block)
		}
		out = binary.AppendUvarint(out, uint64(len(payload)))
		out = append(out, payload...)
		block = block[:0]
		blockRecords = 0
	}

	for i := range records {
		enc, err := encodeRecord(schema, records[i])
		if err != nil {
			return nil, err
		}
		block = binary.AppendUvarint(block, uint64(len(enc)))
		block = append(block, enc...)
		blockRecords++
		if blockRecords >= blockMaxRecords || len(block) >= blockMaxBytes {
			flush()
		}
	}
	flush()

	return out, nil
}

func (c *rowCodec) NewDecoder(schema *types.Schema, r io.Reader) (Decoder, error) {
	br := bufio.NewReader(r)

	var header [6]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, corrupt("short chunk header", err)
	}
	if [4]byte(header[:4]) != chunkMagic {
		return nil, corrupt("bad chunk magic", nil)
	}
	if header[4] != chunkVersion {
		return nil, corrupt(fmt.Sprintf("unsupported chunk version %d", header[4]), nil)
	}

	return &rowDecoder{
		schema:     schema,
		r:          br,
		compressed: header[5]&flagSnappy != 0,
	}, nil
}

type rowDecoder struct {
	schema     *types.Schema
	r          *bufio.Reader
	compressed bool

	block []byte // current decoded block
	off   int    // read offset within block
}

func (d *rowDecoder) Next() (types.Record, error) {
	for d.off >= len(d.block) {
		if err := d.readBlock(); err != nil {
			return types.Record{}, err
		}
	}

	recLen, n := binary.Uvarint(d.block[d.off:])
	if n <= 0 {
		return types.Record{}, corrupt("bad record length prefix", nil)
	}
	d.off += n
	if uint64(len(d.block)-d.off) < recLen {
		return types.Record{}, corrupt("record extends past block", nil)
	}
	buf := d.block[d.off : d.off+int(recLen)]
	d.off += int(recLen)

	return decodeRecord(d.schema, buf)
}

func (d *rowDecoder) readBlock() error {
	blockLen, err := binary.ReadUvarint(d.r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return corrupt("bad block length prefix", err)
	}
	raw := make([]byte, blockLen)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return corrupt("short block", err)
	}
	if d.compressed {
		d.block, err = snappy.Decode(nil, raw)
		if err != nil {
			return corrupt("snappy decode failed", err)
		}
	} else {
		d.block = raw
	}
	d.off = 0
	return nil
}

func encodeRecord(schema *types.Schema, rec types.Record) ([]byte, error) {
	if len(rec.Values) != len(schema.Columns) {
		return nil, errors.NewValidationError(errors.CodeInvalidArgument,
			fmt.Sprintf("record has %d values, schema %q has %d columns",
				len(rec.Values), schema.Tag, len(schema.Columns)))
	}

	b := protowire.AppendTag(nil, timestampField, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(rec.Timestamp))

	for i, v := range rec.Values {
		if v.IsNull() {
			continue
		}
		col := schema.Columns[i]
		num := protowire.Number(i + 2)
		switch col.Type {
		case types.ColumnInteger:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int()))
		case types.ColumnFloat:
			b = protowire.AppendTag(b, num, protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, math.Float64bits(v.Float64()))
		case types.ColumnBoolean:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			var bit uint64
			if v.Bool() {
				bit = 1
			}
			b = protowire.AppendVarint(b, bit)
		case types.ColumnText:
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, v.Str())
		case types.ColumnBytes:
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, v.Blob())
		default:
			return nil, errors.NewValidationError(errors.CodeTypeMismatch,
				fmt.Sprintf("column %q has unsupported type %q", col.Name, col.Type))
		}
	}
	return b, nil
}

func decodeRecord(schema *types.Schema, buf []byte) (types.Record, error) {
	rec := types.EmptyRecord(0, len(schema.Columns))

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return types.Record{}, corrupt("bad field tag", nil)
		}
		buf = buf[n:]

		if num == timestampField {
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return types.Record{}, corrupt("bad timestamp", nil)
			}
			rec.Timestamp = protowire.DecodeZigZag(v)
			buf = buf[n:]
			continue
		}

		idx := int(num) - 2
		if idx < 0 || idx >= len(schema.Columns) {
			// Unknown field: written by a newer schema revision, skip.
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return types.Record{}, corrupt("bad unknown field", nil)
			}
			buf = buf[n:]
			continue
		}

		switch schema.Columns[idx].Type {
		case types.ColumnInteger:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return types.Record{}, corrupt("bad integer cell", nil)
			}
			rec.Values[idx] = types.Integer(protowire.DecodeZigZag(v))
			buf = buf[n:]
		case types.ColumnFloat:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return types.Record{}, corrupt("bad float cell", nil)
			}
			rec.Values[idx] = types.Float(math.Float64frombits(v))
			buf = buf[n:]
		case types.ColumnBoolean:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return types.Record{}, corrupt("bad boolean cell", nil)
			}
			rec.Values[idx] = types.Boolean(v != 0)
			buf = buf[n:]
		case types.ColumnText:
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return types.Record{}, corrupt("bad text cell", nil)
			}
			rec.Values[idx] = types.Text(v)
			buf = buf[n:]
		case types.ColumnBytes:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return types.Record{}, corrupt("bad bytes cell", nil)
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			rec.Values[idx] = types.Bytes(cp)
			buf = buf[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return types.Record{}, corrupt("bad field value", nil)
			}
			buf = buf[n:]
		}
	}
	return rec, nil
}

func corrupt(msg string, cause error) error {
	return errors.NewStorageError(errors.CodeCorruptChunk, msg, cause)
}
