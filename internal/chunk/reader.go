package chunk

import (
	"bytes"
	"context"
	"io"

	"github.com/mosaicolabs/mosaico/internal/codec"
	"github.com/mosaicolabs/mosaico/internal/storage"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// defaultPrefetch is how many chunk objects a reader fetches per page.
const defaultPrefetch = 4

// Reader iterates the records of an ordered chunk list. Objects are
// fetched in pages with bounded parallelism and decoded sequentially, so
// record order follows chunk append order.
type Reader struct {
	schema  *types.Schema
	codec   codec.Codec
	fetcher *storage.BatchFetcher
	paths   []string

	page     map[string][]byte
	pageNext int // index into paths of the first unfetched object
	decoder  codec.Decoder
	cursor   int // index into paths of the chunk being decoded
	prefetch int
}

// NewReader creates a reader over the given chunk object paths.
func NewReader(schema *types.Schema, format types.SerializationFormat, store storage.ObjectStorage, paths []string, prefetch int) (*Reader, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	return &Reader{
		schema:   schema,
		codec:    c,
		fetcher:  storage.NewBatchFetcher(store, prefetch),
		paths:    paths,
		page:     make(map[string][]byte),
		prefetch: prefetch,
	}, nil
}

// Next returns the next record, or io.EOF after the last record of the
// last chunk.
func (r *Reader) Next(ctx context.Context) (types.Record, error) {
	for {
		if r.decoder != nil {
			rec, err := r.decoder.Next()
			if err == nil {
				return rec, nil
			}
			if err != io.EOF {
				return types.Record{}, err
			}
			r.decoder = nil
			r.cursor++
		}

		if r.cursor >= len(r.paths) {
			return types.Record{}, io.EOF
		}

		payload, err := r.payloadFor(ctx, r.paths[r.cursor])
		if err != nil {
			return types.Record{}, err
		}
		dec, err := r.codec.NewDecoder(r.schema, bytes.NewReader(payload))
		if err != nil {
			return types.Record{}, err
		}
		r.decoder = dec
	}
}

// payloadFor returns the bytes of one chunk, fetching the next page of
// objects on a miss and releasing consumed payloads.
func (r *Reader) payloadFor(ctx context.Context, path string) ([]byte, error) {
	if data, ok := r.page[path]; ok {
		delete(r.page, path)
		return data, nil
	}

	if r.pageNext < r.cursor {
		r.pageNext = r.cursor
	}
	end := r.pageNext + r.prefetch
	if end > len(r.paths) {
		end = len(r.paths)
	}
	batch := r.paths[r.pageNext:end]
	if len(batch) == 0 {
		batch = []string{path}
	}

	result, err := r.fetcher.Fetch(ctx, batch)
	if err != nil {
		return nil, err
	}
	for p, data := range result.Objects {
		r.page[p] = data
	}
	r.pageNext = end

	if err, ok := result.Errors[path]; ok {
		return nil, err
	}
	data, ok := r.page[path]
	if !ok {
		if ferr := firstError(result.Errors); ferr != nil {
			return nil, ferr
		}
		// Not fetched in this page; fetch it alone.
		return r.fetchOne(ctx, path)
	}
	delete(r.page, path)
	return data, nil
}

func (r *Reader) fetchOne(ctx context.Context, path string) ([]byte, error) {
	result, err := r.fetcher.Fetch(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	if err, ok := result.Errors[path]; ok {
		return nil, err
	}
	return result.Objects[path], nil
}

func firstError(errs map[string]error) error {
	for _, err := range errs {
		return err
	}
	return nil
}
