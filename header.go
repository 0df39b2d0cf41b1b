package elfrc

import (
	"fmt"
	"io"
	"math/rand"
	"os"

	"go.uber.org/zap"
)

// WriteDeclarations writes a C header that declares every resource still
// included in the build, so the symbols of the emitted object can be
// referenced from C and C++ code. The header is guarded against duplicate
// inclusion.
func WriteDeclarations(w io.Writer, reg *Registry) error {
	guard := includeGuard()

	_, err := fmt.Fprintf(w,
		"#ifndef %s\n"+
			"#define %s\n"+
			"\n"+
			"#ifdef __cplusplus\n"+
			"extern \"C\" {\n"+
			"#endif\n"+
			"\n", guard, guard)
	if err != nil {
		return fmt.Errorf("write declarations: %w", err)
	}

	if _, err := fmt.Fprintf(w, "/* Automatically generated by elfrc %s. Do not modify by hand. */\n", Version); err != nil {
		return fmt.Errorf("write declarations: %w", err)
	}

	for _, res := range reg.Resources() {
		if res.Excluded() {
			continue
		}
		_, err := fmt.Fprintf(w,
			"\n"+
				"/* %s */\n"+
				"extern const char %s[%d];\n",
			res.Path, res.Symbol, res.Size)
		if err != nil {
			return fmt.Errorf("write declaration for %s: %w", res.Symbol, err)
		}
	}

	_, err = fmt.Fprintf(w,
		"\n"+
			"#ifdef __cplusplus\n"+
			"} /* extern \"C\" */\n"+
			"#endif\n"+
			"\n"+
			"#endif /* %s */\n", guard)
	if err != nil {
		return fmt.Errorf("write declarations: %w", err)
	}
	return nil
}

// WriteDeclarationsFile creates or truncates path and writes the resource
// declarations into it.
func WriteDeclarationsFile(path string, reg *Registry) error {
	Logger().Debug("writing header file", zap.String("path", path))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteDeclarations(f, reg); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// includeGuard returns a guard identifier like "H_0934875610938745".
func includeGuard() string {
	digits := make([]byte, 16)
	for i := range digits {
		digits[i] = '0' + byte(rand.Intn(10))
	}
	return "H_" + string(digits)
}
