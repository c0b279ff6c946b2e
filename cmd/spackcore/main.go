// Command spackcore is the top-level entry point over this module's
// Spec algebra and specfile codec (verbs hash, format, specfile-encode,
// specfile-decode; it has no tarball, relocation or buildcache verbs), in
// the flag-and-subcommand style cmd/retagger/cmd/signer use: a verbose
// flag read from flags or env, one verb taken from the first positional
// argument, dispatched to a run function that returns an error rather
// than calling os.Exit itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/internal/corectx"
	"github.com/nscaledev/spackcore/pkg/spec"
	"github.com/nscaledev/spackcore/pkg/specfile"
)

func main() {
	var verbose bool
	flag.BoolVar(&verbose, "v", corectx.BoolFromEnv("SPACKCORE_VERBOSE"), "verbose logging")
	flag.Parse()

	cc := corectx.New()
	if verbose {
		cc.Log.SetLevel(cc.Log.GetLevel() + 1)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: spackcore <hash|format|specfile-encode|specfile-decode> ...")
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "hash":
		err = runHash(args[1:])
	case "format":
		err = runFormat(args[1:])
	case "specfile-encode":
		err = runSpecfileEncode(args[1:])
	case "specfile-decode":
		err = runSpecfileDecode(args[1:])
	default:
		err = errors.Errorf("unknown verb %q", args[0])
	}
	if err != nil {
		cc.Log.Error(err)
		os.Exit(1)
	}
}

// runHash parses a spec string (spec.md §6.1 surface syntax), computes
// its dag hash, and prints it. The input spec must already be concrete;
// concretization itself is out of this module's scope (spec.md §1).
func runHash(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: spackcore hash <spec-string>")
	}
	s, err := spec.Parse(args[0])
	if err != nil {
		return errors.Wrap(err, "parsing spec")
	}
	hash, err := s.ComputeHash()
	if err != nil {
		return errors.Wrap(err, "computing dag hash")
	}
	fmt.Println(hash)
	return nil
}

// runFormat parses a spec string and re-renders it with the given
// template (spec.md §4.4 Format), defaulting to the canonical
// `{name}{@version}{variants}` template when none is given.
func runFormat(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: spackcore format <spec-string> [template]")
	}
	s, err := spec.Parse(args[0])
	if err != nil {
		return errors.Wrap(err, "parsing spec")
	}
	template := "{name}{@version}{variants}"
	if len(args) == 2 {
		template = args[1]
	}
	out, err := s.Format(template, false)
	if err != nil {
		return errors.Wrap(err, "formatting spec")
	}
	fmt.Println(out)
	return nil
}

// runSpecfileEncode parses a concrete spec string, stamps its hash if
// missing, and writes the current-format specfile document to stdout.
func runSpecfileEncode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: spackcore specfile-encode <spec-string>")
	}
	s, err := spec.Parse(args[0])
	if err != nil {
		return errors.Wrap(err, "parsing spec")
	}
	dt, err := specfile.Encode(s)
	if err != nil {
		return errors.Wrap(err, "encoding specfile")
	}
	os.Stdout.Write(dt)
	fmt.Println()
	return nil
}

// runSpecfileDecode reads a specfile document from a path (any prior
// format version, optionally clear-signed) and prints its root spec's
// canonical string form.
func runSpecfileDecode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: spackcore specfile-decode <path>")
	}
	dt, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "reading %s", args[0])
	}
	s, err := specfile.Decode(dt)
	if err != nil {
		return errors.Wrap(err, "decoding specfile")
	}
	fmt.Println(s.String())
	return nil
}
