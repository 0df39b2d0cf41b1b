package elfobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Arch identifies the machine an emitted object is for. The fields are
// copied verbatim into the output ELF header so the object links cleanly
// against code built for the target.
type Arch struct {
	Class      elf.Class
	Data       elf.Data
	OSABI      elf.OSABI
	ABIVersion uint8
	Machine    elf.Machine
	Flags      uint32
}

// ByteOrder returns the encoder matching the target's data encoding.
func (a Arch) ByteOrder() binary.ByteOrder {
	if a.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// geometry holds the class-dependent sizes the layout depends on.
type geometry struct {
	ehdrSize uint64
	shdrSize uint64
	symSize  uint64
	// alignCap is the target's pointer bit-width; the alignment of a
	// resource never exceeds it.
	alignCap uint64
}

func (a Arch) geometry() geometry {
	if a.Class == elf.ELFCLASS32 {
		return geometry{ehdrSize: 52, shdrSize: 40, symSize: 16, alignCap: 32}
	}
	return geometry{ehdrSize: 64, shdrSize: 64, symSize: 24, alignCap: 64}
}

// ReadArch copies machine and ABI identification from the header of an
// existing ELF file, typically the running binary or a caller-supplied
// reference object.
func ReadArch(path string) (Arch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Arch{}, fmt.Errorf("open reference object %s: %w", path, err)
	}
	defer f.Close()

	var ident [16]byte
	if _, err := io.ReadFull(f, ident[:]); err != nil {
		return Arch{}, fmt.Errorf("read reference object %s: %w", path, err)
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return Arch{}, fmt.Errorf("reference object %s: not an ELF file", path)
	}

	arch := Arch{
		Class:      elf.Class(ident[elf.EI_CLASS]),
		Data:       elf.Data(ident[elf.EI_DATA]),
		OSABI:      elf.OSABI(ident[elf.EI_OSABI]),
		ABIVersion: ident[elf.EI_ABIVERSION],
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Arch{}, fmt.Errorf("read reference object %s: %w", path, err)
	}
	switch arch.Class {
	case elf.ELFCLASS64:
		var hdr elf.Header64
		if err := binary.Read(f, arch.ByteOrder(), &hdr); err != nil {
			return Arch{}, fmt.Errorf("read reference object %s: %w", path, err)
		}
		arch.Machine = elf.Machine(hdr.Machine)
		arch.Flags = hdr.Flags
	case elf.ELFCLASS32:
		var hdr elf.Header32
		if err := binary.Read(f, arch.ByteOrder(), &hdr); err != nil {
			return Arch{}, fmt.Errorf("read reference object %s: %w", path, err)
		}
		arch.Machine = elf.Machine(hdr.Machine)
		arch.Flags = hdr.Flags
	default:
		return Arch{}, fmt.Errorf("reference object %s: unknown ELF class %d", path, ident[elf.EI_CLASS])
	}
	return arch, nil
}

// SelfArch reads the architecture of the running binary.
func SelfArch() (Arch, error) {
	path, err := os.Executable()
	if err != nil {
		return Arch{}, fmt.Errorf("locate own binary: %w", err)
	}
	return ReadArch(path)
}
