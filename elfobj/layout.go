// Package elfobj lays out and emits ELF relocatable objects that expose
// resource files as named data symbols.
//
// The output has a fixed topology of nine sections: null, .text, .data and
// .bss (all empty), .rodata holding the concatenated padded resource bytes,
// .comment identifying the tool, .shstrtab, .symtab and .strtab. Layout and
// emission are two separate phases: Compute patches a copy of the static
// section skeleton with all sizes and offsets, Emit then serializes the
// already-determined values in one forward pass.
package elfobj

import (
	"debug/elf"

	"github.com/yashi/elfrc"
)

// Section indices of the fixed topology.
const (
	secNull = iota
	secText
	secData
	secBss
	secRodata
	secComment
	secShstrtab
	secSymtab
	secStrtab
	sectionCount
)

// fixedSymbolCount is the number of local symbols preceding the resource
// symbols: the undefined symbol, the source-file symbol and one section
// symbol each for .text, .data, .bss, .rodata and .comment. It doubles as
// the symtab header's Info value, the index of the first global symbol.
const fixedSymbolCount = 7

// sectionHeader is a class-independent section descriptor. It is converted
// to elf.Section64 or elf.Section32 during emission.
type sectionHeader struct {
	Name      uint32
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Off       uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// shstrtabBlob is the section-name string table. The Name offsets in
// sectionTemplates index into it.
var shstrtabBlob = []byte("\x00.text\x00.data\x00.bss\x00.rodata\x00.comment\x00.shstrtab\x00.symtab\x00.strtab\x00")

// commentBlob identifies the producing tool; it becomes the .comment section.
var commentBlob []byte

func init() {
	commentBlob = append([]byte("Created by elfrc "+elfrc.Version), 0)
}

// sectionTemplates is the immutable skeleton of the output object.
// Compute patches a copy with sizes and offsets; everything else is fixed.
var sectionTemplates = [sectionCount]sectionHeader{
	secNull:     {},
	secText:     {Name: 1, Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addralign: 4},
	secData:     {Name: 7, Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addralign: 4},
	secBss:      {Name: 13, Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addralign: 4},
	secRodata:   {Name: 18, Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC},
	secComment:  {Name: 26, Type: elf.SHT_PROGBITS, Addralign: 1},
	secShstrtab: {Name: 35, Type: elf.SHT_STRTAB, Addralign: 1},
	secSymtab:   {Name: 45, Type: elf.SHT_SYMTAB, Link: secStrtab, Info: fixedSymbolCount, Addralign: 4},
	secStrtab:   {Name: 53, Type: elf.SHT_STRTAB, Addralign: 1},
}

// Layout holds every size and offset of an output object. After Compute the
// emitter performs pure serialization of these values.
type Layout struct {
	Arch     Arch
	Sections [sectionCount]sectionHeader

	// PayloadAlign is the alignment of .rodata: the maximum over all
	// resources of the smallest power of two >= the resource size, capped
	// at the target's pointer bit-width, or 1 if there are no resources.
	PayloadAlign uint64
	PayloadSize  uint64
	SymtabSize   uint64
	StrtabSize   uint64

	geo geometry
}

// Compute finalizes the layout for a complete registry. It stores each
// resource's payload and string-table offsets and patches the section
// descriptors accordingly. The registry must not grow afterwards.
func Compute(reg *elfrc.Registry, arch Arch) *Layout {
	l := &Layout{Arch: arch, Sections: sectionTemplates, geo: arch.geometry()}

	maxalign := uint64(1)
	for _, res := range reg.Resources() {
		align := uint64(1)
		for align < l.geo.alignCap && res.Size > align {
			align <<= 1
		}
		if align > maxalign {
			maxalign = align
		}
	}
	l.PayloadAlign = maxalign

	// Running sizes. Sizing counts every registered resource, active or
	// not; a later open failure blanks that resource's entries but does
	// not shrink the tables.
	l.SymtabSize = fixedSymbolCount * l.geo.symSize
	l.StrtabSize = 1
	resources := reg.Resources()
	for i, res := range resources {
		res.PayloadOffset = l.PayloadSize
		l.PayloadSize += res.Size
		l.SymtabSize += l.geo.symSize
		res.StrtabOffset = l.StrtabSize
		l.StrtabSize += res.SymbolSize
		if i != len(resources)-1 {
			l.PayloadSize += l.padding(res.Size)
		}
	}

	headerSize := l.geo.ehdrSize + sectionCount*l.geo.shdrSize
	commentOff := headerSize
	shstrtabOff := commentOff + uint64(len(commentBlob))
	symtabOff := shstrtabOff + uint64(len(shstrtabBlob))
	strtabOff := symtabOff + l.SymtabSize
	payloadOff := strtabOff + l.StrtabSize

	l.Sections[secRodata].Off = payloadOff
	l.Sections[secRodata].Size = l.PayloadSize
	l.Sections[secRodata].Addralign = l.PayloadAlign
	l.Sections[secComment].Off = commentOff
	l.Sections[secComment].Size = uint64(len(commentBlob))
	l.Sections[secShstrtab].Off = shstrtabOff
	l.Sections[secShstrtab].Size = uint64(len(shstrtabBlob))
	l.Sections[secSymtab].Off = symtabOff
	l.Sections[secSymtab].Size = l.SymtabSize
	l.Sections[secSymtab].Entsize = l.geo.symSize
	l.Sections[secStrtab].Off = strtabOff
	l.Sections[secStrtab].Size = l.StrtabSize

	return l
}

// padding returns the gap written after a resource of the given size.
// The historical formula rounds against the section-wide alignment, not the
// resource's own requirement, and yields a full alignment unit when size is
// a larger multiple of it. Emitted objects depend on these exact gaps;
// changing the formula changes the binary layout.
func (l *Layout) padding(size uint64) uint64 {
	if size == l.PayloadAlign {
		return 0
	}
	return ((l.PayloadAlign - 1) &^ size) + 1
}
