// internal/repl/repl.go
package repl

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"tern/internal/compiler"
	"tern/internal/lexer"
	"tern/internal/parser"
	"tern/internal/vm"
)

// Start runs the interactive loop. One interpreter is reused across lines
// so definitions persist; each line compiles into a fresh chunk executed
// on a continuation frame.
func Start() {
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Println("tern repl | type 'exit' to quit, :globals and :gc to inspect")
	}
	scanner := bufio.NewScanner(os.Stdin)

	interp := vm.New(vm.DefaultConfig())
	prepared := false
	defer func() {
		if prepared {
			interp.Teardown()
		}
	}()

	for {
		if interactive {
			fmt.Print(">>> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line == "exit" {
			break
		}
		if line == ":globals" {
			if prepared {
				for _, name := range interp.GlobalNames() {
					fmt.Println(name)
				}
			}
			continue
		}
		if line == ":gc" {
			if prepared {
				freed := interp.ForceCollect()
				fmt.Printf("freed %d objects\n", freed)
				interp.GC().WriteStats(os.Stdout)
			}
			continue
		}

		lex := lexer.NewScanner(line, "repl")
		tokens := lex.ScanTokens()
		if reportErrors(lex.Errors) {
			continue
		}
		p := parser.NewParserWithSource(tokens, line, "repl")
		stmts := p.Parse()
		if reportErrors(p.Errors) {
			continue
		}
		chunk, err := compiler.NewCompilerForFile("repl").Compile(stmts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		if !prepared {
			if err := interp.Prepare(chunk, nil); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			prepared = true
			interp.Run()
			continue
		}
		interp.RunChunk(chunk)
	}
}

func reportErrors(errs []error) bool {
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e)
	}
	return len(errs) > 0
}
