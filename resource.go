package elfrc

import "go.uber.org/zap"

// Version of the elfrc tool, embedded in generated artifacts.
const Version = "1.0.0"

// Kind selects how a resource's bytes are stored in the payload section.
type Kind int

const (
	// Text resources get a single NUL byte appended to their payload,
	// so the resulting symbol can be used as a C string.
	Text Kind = iota
	// Binary resources are stored byte for byte.
	Binary
)

func (k Kind) String() string {
	if k == Text {
		return "text"
	}
	return "binary"
}

// Resource is one manifest-declared file destined to become a named
// byte-array symbol in the output object.
type Resource struct {
	Kind   Kind
	Symbol string
	// SymbolSize is the byte length of Symbol including its terminating NUL,
	// as stored in the string table.
	SymbolSize uint64
	// Path of the payload file, relative to the working directory.
	Path string
	// Size of the payload in bytes. For Text resources this is the file
	// size plus one; it is fixed at registration and never recomputed from
	// the bytes actually copied.
	Size uint64

	// Filled in by the layout pass.
	PayloadOffset uint64
	StrtabOffset  uint64

	excluded bool
}

// Exclude drops the resource from payload emission. Symbol-table and
// string-table slots already written for it are not retracted.
func (r *Resource) Exclude() { r.excluded = true }

// Excluded reports whether the resource's payload is skipped during emission.
func (r *Resource) Excluded() bool { return r.excluded }

// Registry is the ordered, append-only resource collection of one build.
// Layout and emission both traverse it in registration order; that order
// determines payload offsets and symbol-table positions.
type Registry struct {
	resources []*Resource
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a resource. fileSize is the on-disk size of the payload file;
// Text resources are stored one byte larger to hold the trailing NUL.
func (reg *Registry) Add(kind Kind, symbol, path string, fileSize int64) *Resource {
	res := &Resource{
		Kind:       kind,
		Symbol:     symbol,
		SymbolSize: uint64(len(symbol)) + 1,
		Path:       path,
		Size:       uint64(fileSize),
	}
	if kind == Text {
		res.Size++
	}
	reg.resources = append(reg.resources, res)

	Logger().Debug("registered resource",
		zap.String("symbol", symbol),
		zap.Stringer("kind", kind),
		zap.String("path", path),
		zap.Uint64("size", res.Size))
	return res
}

// Resources returns the resources in registration order.
// The returned slice must not be reordered.
func (reg *Registry) Resources() []*Resource {
	return reg.resources
}

func (reg *Registry) Len() int {
	return len(reg.resources)
}
