// cmd/tern/main.go
package main

import (
	"fmt"
	"os"

	perrors "github.com/pkg/errors"

	"tern/internal/bytecode"
	"tern/internal/compiler"
	"tern/internal/lexer"
	"tern/internal/parser"
	"tern/internal/repl"
	"tern/internal/vm"
)

const version = "1.0.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	switch cmd {
	case "--help", "-h", "help":
		showUsage()
		return
	case "--version", "-v", "version":
		fmt.Printf("tern %s\n", version)
		return
	case "repl", "i":
		repl.Start()
		return
	case "run", "r":
		args = args[1:]
	}

	disasm := false
	gcStats := false
	var path string
	var scriptArgs []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-disasm":
			disasm = true
		case "-gc-stats":
			gcStats = true
		default:
			path = args[i]
			scriptArgs = args[i+1:]
			i = len(args)
		}
	}
	if path == "" {
		showUsage()
		os.Exit(2)
	}

	code, err := runFile(path, scriptArgs, disasm, gcStats)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func runFile(path string, scriptArgs []string, disasm, gcStats bool) (int, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return 2, perrors.Wrapf(err, "could not open %s", path)
	}

	chunk, err := compile(string(source), path)
	if err != nil {
		return 1, err
	}

	if disasm {
		fmt.Fprint(os.Stderr, bytecode.Disassemble(chunk))
	}

	interp := vm.New(vm.DefaultConfig())
	if err := interp.Prepare(chunk, scriptArgs); err != nil {
		return 2, perrors.Wrap(err, "could not set up runtime environment")
	}
	code := interp.Run()
	if gcStats {
		interp.GC().WriteStats(os.Stderr)
	}
	interp.Teardown()
	return code, nil
}

func compile(source, path string) (*bytecode.Chunk, error) {
	scanner := lexer.NewScanner(source, path)
	tokens := scanner.ScanTokens()
	if len(scanner.Errors) > 0 {
		return nil, scanner.Errors[0]
	}
	p := parser.NewParserWithSource(tokens, source, path)
	stmts := p.Parse()
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	return compiler.NewCompilerForFile(path).Compile(stmts)
}

func showUsage() {
	fmt.Println(`tern - a small scripting language

Usage:
  tern run [flags] <script> [args...]   run a script (run may be omitted)
  tern repl                             start the interactive shell
  tern version                          print the version

Flags:
  -disasm     dump bytecode to stderr before running
  -gc-stats   print collector statistics after the run`)
}
