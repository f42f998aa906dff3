// Package ontology holds the static registry of known record types.
// Each ontology type maps a tag string to a schema, a serialization
// format, and a table of valid query field paths. The registry is built
// at process start; there is no runtime class discovery.
package ontology

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Descriptor describes one ontology type.
type Descriptor struct {
	// Tag is the ontology type identifier (e.g. "imu")
	Tag string

	// Schema is the ordered column list for records of this type
	Schema *types.Schema

	// Format selects the chunk codec and flush policy
	Format types.SerializationFormat
}

// Registry maps ontology tags to descriptors and exposes the statically
// derived field-path table used for query validation.
type Registry struct {
	mu    sync.RWMutex
	byTag map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Duplicate tags are a conflict.
func (r *Registry) Register(d *Descriptor) error {
	if d.Tag == "" || d.Schema == nil {
		return errors.NewValidationError(errors.CodeInvalidArgument, "descriptor requires tag and schema")
	}
	if !d.Format.Valid() {
		return errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("unknown serialization format %q for tag %q", d.Format, d.Tag))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTag[d.Tag]; ok {
		return errors.NewAlreadyExistsError(fmt.Sprintf("ontology tag %q already registered", d.Tag))
	}
	r.byTag[d.Tag] = d
	return nil
}

// Lookup returns the descriptor for a tag.
func (r *Registry) Lookup(tag string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byTag[tag]
	if !ok {
		return nil, errors.NewNotFoundError(errors.CodeUnknownOntology,
			fmt.Sprintf("unknown ontology tag %q", tag))
	}
	return d, nil
}

// Tags returns all registered tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.byTag))
	for t := range r.byTag {
		tags = append(tags, t)
	}
	return tags
}

// SplitKey splits a dotted query key "tag.field0[.field1]" into its tag
// and column name. Column names may themselves contain dots
// (e.g. "imu.acceleration.x" -> tag "imu", column "acceleration.x").
func SplitKey(key string) (tag, column string, err error) {
	i := strings.IndexByte(key, '.')
	if i <= 0 || i == len(key)-1 {
		return "", "", errors.NewValidationError(errors.CodeInvalidQuery,
			fmt.Sprintf("malformed field key %q, want tag.field", key))
	}
	return key[:i], key[i+1:], nil
}

// ResolveField validates a dotted key against the registry and returns
// the tag and the column definition. The implicit timestamp column
// resolves for every tag.
func (r *Registry) ResolveField(key string) (string, types.ColumnDef, error) {
	tag, column, err := SplitKey(key)
	if err != nil {
		return "", types.ColumnDef{}, err
	}
	d, err := r.Lookup(tag)
	if err != nil {
		return "", types.ColumnDef{}, err
	}
	if column == types.TimestampColumn {
		return tag, types.ColumnDef{Name: types.TimestampColumn, Type: types.ColumnInteger}, nil
	}
	def, ok := d.Schema.Column(column)
	if !ok {
		return "", types.ColumnDef{}, errors.NewValidationError(errors.CodeUnknownFieldPath,
			fmt.Sprintf("ontology %q has no field %q", tag, column))
	}
	return tag, def, nil
}

// defaultRegistry holds the built-in ontology types, populated at init.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
