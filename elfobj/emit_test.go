package elfobj

import (
	"debug/elf"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashi/elfrc"
	"github.com/yashi/elfrc/manifest"
)

var sectionNames = []string{"", ".text", ".data", ".bss", ".rodata", ".comment", ".shstrtab", ".symtab", ".strtab"}

func writePayloadFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func emitObject(t *testing.T, dir string, reg *elfrc.Registry, arch Arch) (string, *Layout) {
	t.Helper()
	l := Compute(reg, arch)
	path := filepath.Join(dir, "resources.o")
	require.NoError(t, EmitFile(path, reg, l))
	return path, l
}

func TestEmitRoundTrip(t *testing.T) {
	dir := t.TempDir()
	greeting := writePayloadFile(t, dir, "greeting.txt", "hi")

	reg := elfrc.NewRegistry()
	require.NoError(t, manifest.Load(strings.NewReader("text\tGREETING\t"+greeting+"\n"), reg))
	path, _ := emitObject(t, dir, reg, testArch())

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, elf.ET_REL, f.Type)
	assert.Equal(t, elf.EM_X86_64, f.Machine)
	assert.Equal(t, elf.ELFCLASS64, f.Class)

	require.Len(t, f.Sections, 9)
	for i, want := range sectionNames {
		assert.Equal(t, want, f.Sections[i].Name, "section %d", i)
	}

	rodata := f.Section(".rodata")
	require.NotNil(t, rodata)
	data, err := rodata.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 'i', 0}, data)
	assert.Equal(t, uint64(4), rodata.Addralign)

	comment := f.Section(".comment")
	require.NotNil(t, comment)
	commentData, err := comment.Data()
	require.NoError(t, err)
	assert.Equal(t, commentBlob, commentData)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 7, "six fixed locals after the null entry, plus one resource")

	got := syms[6]
	assert.Equal(t, "GREETING", got.Name)
	assert.Equal(t, uint64(0), got.Value)
	assert.Equal(t, uint64(3), got.Size)
	assert.Equal(t, elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT), got.Info)
	assert.Equal(t, elf.SectionIndex(secRodata), got.Section)
}

func TestEmitTwoBinaries(t *testing.T) {
	dir := t.TempDir()
	a := writePayloadFile(t, dir, "a.bin", "a")
	b := writePayloadFile(t, dir, "b.bin", "b")

	reg := elfrc.NewRegistry()
	require.NoError(t, manifest.Load(strings.NewReader("binary\tA\t"+a+"\nbinary\tB\t"+b+"\n"), reg))
	path, _ := emitObject(t, dir, reg, testArch())

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()

	data, err := f.Section(".rodata").Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), data)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 8)
	assert.Equal(t, "A", syms[6].Name)
	assert.Equal(t, uint64(0), syms[6].Value)
	assert.Equal(t, "B", syms[7].Name)
	assert.Equal(t, uint64(1), syms[7].Value)
}

func TestEmitInterResourcePadding(t *testing.T) {
	dir := t.TempDir()
	greeting := writePayloadFile(t, dir, "greeting.txt", "hi")
	tail := writePayloadFile(t, dir, "tail.bin", "z")

	reg := elfrc.NewRegistry()
	require.NoError(t, manifest.Load(strings.NewReader(
		"text\tGREETING\t"+greeting+"\nbinary\tTAIL\t"+tail+"\n"), reg))
	path, l := emitObject(t, dir, reg, testArch())

	require.Equal(t, uint64(4), l.PayloadAlign)
	require.Equal(t, uint64(4), reg.Resources()[1].PayloadOffset)

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()

	data, err := f.Section(".rodata").Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 'i', 0, 0, 'z'}, data, "one zero gap before the second resource")
}

func TestEmitEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	reg := elfrc.NewRegistry()
	path, l := emitObject(t, dir, reg, testArch())

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.Len(t, f.Sections, 9)
	assert.Equal(t, uint64(0), f.Section(".rodata").Size)

	syms, err := f.Symbols()
	require.NoError(t, err)
	assert.Len(t, syms, 6)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(l.Sections[secRodata].Off), info.Size())
}

// A payload file that vanishes between parsing and emission is dropped from
// the payload stream, but the symbol and string-table entries written earlier
// in the pass stay behind, describing bytes that were never emitted.
func TestEmitVanishedFileKeepsSymbol(t *testing.T) {
	dir := t.TempDir()
	doomed := writePayloadFile(t, dir, "doomed.bin", "123")

	reg := elfrc.NewRegistry()
	require.NoError(t, manifest.Load(strings.NewReader("binary\tDOOMED\t"+doomed+"\n"), reg))
	l := Compute(reg, testArch())

	require.NoError(t, os.Remove(doomed))

	path := filepath.Join(dir, "resources.o")
	require.NoError(t, EmitFile(path, reg, l))
	assert.True(t, reg.Resources()[0].Excluded())

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 7, "the symbol slot is not retracted")
	assert.Equal(t, "DOOMED", syms[6].Name)
	assert.Equal(t, uint64(3), syms[6].Size)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(l.Sections[secRodata].Off), info.Size(),
		"the declared payload bytes are missing from the file")

	_, err = f.Section(".rodata").Data()
	assert.Error(t, err, "the payload section extends past the end of the file")
}

func TestEmitClass32BigEndian(t *testing.T) {
	dir := t.TempDir()
	blob := writePayloadFile(t, dir, "blob.bin", "abc")

	reg := elfrc.NewRegistry()
	require.NoError(t, manifest.Load(strings.NewReader("binary\tBLOB\t"+blob+"\n"), reg))

	arch := Arch{
		Class:   elf.ELFCLASS32,
		Data:    elf.ELFDATA2MSB,
		OSABI:   elf.ELFOSABI_NONE,
		Machine: elf.EM_PPC,
	}
	path, _ := emitObject(t, dir, reg, arch)

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, elf.ELFCLASS32, f.Class)
	assert.Equal(t, elf.ELFDATA2MSB, f.Data)
	assert.Equal(t, elf.EM_PPC, f.Machine)

	data, err := f.Section(".rodata").Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 7)
	assert.Equal(t, "BLOB", syms[6].Name)
	assert.Equal(t, uint64(3), syms[6].Size)
}
