package elfrc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDeclarations(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Text, "GREETING", "greeting.txt", 2)
	reg.Add(Binary, "LOGO", "img/logo.png", 512)

	var buf bytes.Buffer
	require.NoError(t, WriteDeclarations(&buf, reg))
	out := buf.String()

	assert.Regexp(t, `^#ifndef H_\d{16}\n#define H_\d{16}\n`, out)
	assert.Regexp(t, `#endif /\* H_\d{16} \*/\n$`, out)
	assert.Contains(t, out, "extern \"C\" {")
	assert.Contains(t, out, "/* greeting.txt */\nextern const char GREETING[3];")
	assert.Contains(t, out, "/* img/logo.png */\nextern const char LOGO[512];")
}

func TestWriteDeclarationsSkipsExcluded(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Binary, "KEPT", "kept.bin", 1)
	reg.Add(Binary, "GONE", "gone.bin", 1).Exclude()

	var buf bytes.Buffer
	require.NoError(t, WriteDeclarations(&buf, reg))

	assert.Contains(t, buf.String(), "KEPT")
	assert.NotContains(t, buf.String(), "GONE")
}

func TestWriteDeclarationsFile(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Binary, "BLOB", "blob.bin", 4)

	path := filepath.Join(t.TempDir(), "resources.h")
	require.NoError(t, WriteDeclarationsFile(path, reg))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "extern const char BLOB[4];")
}
