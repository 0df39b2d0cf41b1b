// Command elfrc compiles a manifest of files into an ELF relocatable object
// that exposes each file as a named data symbol, plus an optional C header
// declaring those symbols.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yashi/elfrc"
	"github.com/yashi/elfrc/elfobj"
	"github.com/yashi/elfrc/manifest"
)

type CommandLine struct {
	Object    string
	Header    string
	Reference string
	Verbose   bool
}

func main() {
	var cmd CommandLine
	flag.StringVar(&cmd.Object, "o", "", "Path for the ELF relocatable object file")
	flag.StringVar(&cmd.Header, "h", "", "Path for the generated C header")
	flag.StringVar(&cmd.Reference, "ref", "", "ELF file to copy machine and ABI fields from (default: the running binary)")
	flag.BoolVar(&cmd.Verbose, "v", false, "Report progress while compiling")
	flag.Usage = usage
	flag.Parse()

	if cmd.Object == "" && cmd.Header == "" {
		usage()
		fmt.Fprintln(os.Stderr, "No output chosen. Try -o and/or -h.")
		os.Exit(1)
	}

	elfrc.SetLogger(newLogger(cmd.Verbose))

	registry := elfrc.NewRegistry()
	if err := loadManifest(flag.Arg(0), registry); err != nil {
		log.Fatalf("%s", err)
	}

	arch, err := referenceArch(cmd.Reference)
	if err != nil {
		log.Fatalf("%s", err)
	}
	layout := elfobj.Compute(registry, arch)

	if cmd.Object != "" {
		if err := elfobj.EmitFile(cmd.Object, registry, layout); err != nil {
			log.Fatalf("%s", err)
		}
	}
	if cmd.Header != "" {
		if err := elfrc.WriteDeclarationsFile(cmd.Header, registry); err != nil {
			log.Fatalf("%s", err)
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "elfrc %s - a resource compiler for ELF systems\n", elfrc.Version)
	fmt.Fprintf(os.Stderr, "usage: elfrc [-o <object>] [-h <header>] [-ref <elf>] [-v] [manifest]\n")
	fmt.Fprintf(os.Stderr, "The manifest is read from stdin if no path (or \"-\") is given.\n")
	flag.PrintDefaults()
}

func loadManifest(path string, registry *elfrc.Registry) error {
	var in io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open resource manifest %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}
	return manifest.Load(in, registry)
}

func referenceArch(path string) (elfobj.Arch, error) {
	if path == "" {
		return elfobj.SelfArch()
	}
	return elfobj.ReadArch(path)
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("build logger: %s", err)
	}
	return logger
}
