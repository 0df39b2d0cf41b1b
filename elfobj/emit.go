package elfobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/yashi/elfrc"
)

// symbolEntry is a class-independent symbol-table entry. It is converted to
// elf.Sym64 or elf.Sym32 during emission.
type symbolEntry struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// fixedSymbols are the local symbols every emitted object starts with: the
// undefined symbol, the source-file symbol and one symbol per static section.
var fixedSymbols = [fixedSymbolCount]symbolEntry{
	{},
	{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_FILE), Shndx: uint16(elf.SHN_ABS)},
	{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: secText},
	{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: secData},
	{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: secBss},
	{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: secRodata},
	{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: secComment},
}

// EmitFile creates or truncates path and writes the object into it.
// On error the destination is left partially written.
func EmitFile(path string, reg *elfrc.Registry, l *Layout) error {
	elfrc.Logger().Debug("writing ELF relocatable file", zap.String("path", path))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Emit(f, reg, l); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Emit streams the complete object in one forward pass: ELF header, the nine
// section descriptors, the comment and section-name blobs, the symbol table,
// the resource-name string table and the padded payload bytes. A resource
// whose file can no longer be opened is excluded from the payload; its
// symbol-table and string-table slots have been written by then and stay
// reserved, leaving a symbol that points at bytes which were never emitted.
func Emit(w io.Writer, reg *elfrc.Registry, l *Layout) error {
	order := l.Arch.ByteOrder()

	if err := writeEhdr(w, l); err != nil {
		return fmt.Errorf("write ELF header: %w", err)
	}
	for i := range l.Sections {
		if err := writeShdr(w, order, l.Arch.Class, &l.Sections[i]); err != nil {
			return fmt.Errorf("write section header %d: %w", i, err)
		}
	}
	if _, err := w.Write(commentBlob); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	if _, err := w.Write(shstrtabBlob); err != nil {
		return fmt.Errorf("write section names: %w", err)
	}
	if err := writeSymbols(w, order, l, reg); err != nil {
		return err
	}
	if err := writeStringTable(w, reg); err != nil {
		return err
	}
	return writePayload(w, reg, l)
}

func writeEhdr(w io.Writer, l *Layout) error {
	a := l.Arch

	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[elf.EI_CLASS] = byte(a.Class)
	ident[elf.EI_DATA] = byte(a.Data)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(a.OSABI)
	ident[elf.EI_ABIVERSION] = a.ABIVersion

	if a.Class == elf.ELFCLASS32 {
		return binary.Write(w, a.ByteOrder(), elf.Header32{
			Ident:     ident,
			Type:      uint16(elf.ET_REL),
			Machine:   uint16(a.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Shoff:     uint32(l.geo.ehdrSize),
			Flags:     a.Flags,
			Ehsize:    uint16(l.geo.ehdrSize),
			Shentsize: uint16(l.geo.shdrSize),
			Shnum:     sectionCount,
			Shstrndx:  secShstrtab,
		})
	}
	return binary.Write(w, a.ByteOrder(), elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(a.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     l.geo.ehdrSize,
		Flags:     a.Flags,
		Ehsize:    uint16(l.geo.ehdrSize),
		Shentsize: uint16(l.geo.shdrSize),
		Shnum:     sectionCount,
		Shstrndx:  secShstrtab,
	})
}

func writeShdr(w io.Writer, order binary.ByteOrder, class elf.Class, sec *sectionHeader) error {
	if class == elf.ELFCLASS32 {
		return binary.Write(w, order, elf.Section32{
			Name:      sec.Name,
			Type:      uint32(sec.Type),
			Flags:     uint32(sec.Flags),
			Addr:      uint32(sec.Addr),
			Off:       uint32(sec.Off),
			Size:      uint32(sec.Size),
			Link:      sec.Link,
			Info:      sec.Info,
			Addralign: uint32(sec.Addralign),
			Entsize:   uint32(sec.Entsize),
		})
	}
	return binary.Write(w, order, elf.Section64{
		Name:      sec.Name,
		Type:      uint32(sec.Type),
		Flags:     uint64(sec.Flags),
		Addr:      sec.Addr,
		Off:       sec.Off,
		Size:      sec.Size,
		Link:      sec.Link,
		Info:      sec.Info,
		Addralign: sec.Addralign,
		Entsize:   sec.Entsize,
	})
}

func writeSym(w io.Writer, order binary.ByteOrder, class elf.Class, sym *symbolEntry) error {
	if class == elf.ELFCLASS32 {
		return binary.Write(w, order, elf.Sym32{
			Name:  sym.Name,
			Value: uint32(sym.Value),
			Size:  uint32(sym.Size),
			Info:  sym.Info,
			Other: sym.Other,
			Shndx: sym.Shndx,
		})
	}
	return binary.Write(w, order, elf.Sym64{
		Name:  sym.Name,
		Info:  sym.Info,
		Other: sym.Other,
		Shndx: sym.Shndx,
		Value: sym.Value,
		Size:  sym.Size,
	})
}

// writeSymbols writes the fixed local symbols followed by one global
// data-object symbol per resource still included, in registration order.
func writeSymbols(w io.Writer, order binary.ByteOrder, l *Layout, reg *elfrc.Registry) error {
	for i := range fixedSymbols {
		if err := writeSym(w, order, l.Arch.Class, &fixedSymbols[i]); err != nil {
			return fmt.Errorf("write symbol table: %w", err)
		}
	}
	for _, res := range reg.Resources() {
		if res.Excluded() {
			continue
		}
		sym := symbolEntry{
			Name:  uint32(res.StrtabOffset),
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT),
			Shndx: secRodata,
			Value: res.PayloadOffset,
			Size:  res.Size,
		}
		if err := writeSym(w, order, l.Arch.Class, &sym); err != nil {
			return fmt.Errorf("write symbol %s: %w", res.Symbol, err)
		}
	}
	return nil
}

// writeStringTable writes the leading NUL followed by the NUL-terminated
// symbol names of all resources still included, in registration order.
func writeStringTable(w io.Writer, reg *elfrc.Registry) error {
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("write string table: %w", err)
	}
	for _, res := range reg.Resources() {
		if res.Excluded() {
			continue
		}
		if _, err := w.Write(append([]byte(res.Symbol), 0)); err != nil {
			return fmt.Errorf("write string table: %w", err)
		}
	}
	return nil
}

// writePayload copies the resource files into the output, in registration
// order, with the gaps computed at layout time. The gap after an excluded
// resource is still written so that the offsets of later resources hold.
func writePayload(w io.Writer, reg *elfrc.Registry, l *Layout) error {
	resources := reg.Resources()
	for i, res := range resources {
		if !res.Excluded() {
			if err := mergeFile(w, res); err != nil {
				return err
			}
		}
		if i != len(resources)-1 {
			if err := writeZero(w, l.padding(res.Size)); err != nil {
				return fmt.Errorf("write padding: %w", err)
			}
		}
	}
	return nil
}

// mergeFile copies the resource's file into the output verbatim, appending
// the trailing NUL for text resources. A file that can no longer be opened
// excludes the resource; read and write failures abort the emission.
func mergeFile(w io.Writer, res *elfrc.Resource) error {
	elfrc.Logger().Debug("merging file into object", zap.String("path", res.Path))

	f, err := os.Open(res.Path)
	if err != nil {
		elfrc.Logger().Warn("cannot open resource file, excluding from payload",
			zap.String("symbol", res.Symbol),
			zap.String("path", res.Path),
			zap.Error(err))
		res.Exclude()
		return nil
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", res.Path, err)
	}
	if res.Kind == elfrc.Text {
		if _, err := w.Write([]byte{0}); err != nil {
			return fmt.Errorf("terminate %s: %w", res.Path, err)
		}
	}
	return nil
}

func writeZero(w io.Writer, n uint64) error {
	if n == 0 {
		return nil
	}
	_, err := w.Write(make([]byte, n))
	return err
}
