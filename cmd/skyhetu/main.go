package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"skyhetu-vm/internal/compiler"
	"skyhetu-vm/internal/lexer"
	"skyhetu-vm/internal/parser"
	"skyhetu-vm/internal/skyerr"
	"skyhetu-vm/internal/value"
	"skyhetu-vm/internal/vm"
)

const Version = "v0.1.0"

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiDim    = "\033[2m"
)

var colorEnabled = isatty.IsTerminal(os.Stderr.Fd())

func colorize(color, s string) string {
	if !colorEnabled {
		return s
	}
	return color + s + ansiReset
}

func main() {
	args := os.Args

	if len(args) < 2 {
		printHelp()
		return
	}

	switch args[1] {
	case "run":
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "%s: missing file argument\n", colorize(ansiRed, "error"))
			fmt.Fprintln(os.Stderr, "Usage: skyhetu run <file.skyh>")
			os.Exit(1)
		}
		runFile(args[2])
	case "repl":
		runREPL()
	case "help", "--help", "-h":
		printHelp()
	case "version", "--version", "-v":
		fmt.Printf("SkyHetu %s\n", Version)
	default:
		// A bare .skyh path implies run.
		if strings.HasSuffix(args[1], ".skyh") {
			runFile(args[1])
			return
		}
		fmt.Fprintf(os.Stderr, "%s: unknown command '%s'\n", colorize(ansiRed, "error"), args[1])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(colorize(ansiCyan, "SkyHetu"))
	fmt.Println("A causality-first programming language")
	fmt.Printf("%s %s\n\n", colorize(ansiCyan, "Version"), Version)
	fmt.Println(colorize(ansiYellow, "USAGE:"))
	fmt.Println("  skyhetu run <file.skyh>  Execute a SkyHetu file")
	fmt.Println("  skyhetu repl             Start interactive REPL")
	fmt.Println("  skyhetu help             Show this help message")
	fmt.Println("  skyhetu version          Show version")
	fmt.Println()
	fmt.Println(colorize(ansiYellow, "LANGUAGE FEATURES:"))
	fmt.Println("  let x = 10               Immutable binding")
	fmt.Println("  state y = 0              Mutable state")
	fmt.Println("  y -> y + 1               State transition (tracked)")
	fmt.Println("  why(y)                   Query causality chain")
	fmt.Println("  fn f(a) { return a }     Function definition")
}

func reportError(err *skyerr.Error, source string) {
	fmt.Fprintln(os.Stderr, colorize(ansiRed, err.WithSource(source).Error()))
}

func runFile(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read file '%s': %v\n", colorize(ansiRed, "error"), path, err)
		os.Exit(1)
	}
	source := string(content)

	p := parser.New(lexer.New(source))
	program, perr := p.Parse()
	if perr != nil {
		reportError(perr, source)
		os.Exit(1)
	}

	machine := vm.New()
	c := compiler.WithBasePath(filepath.Dir(path))
	mainChunk, chunks, cerr := c.Compile(program, machine.Heap)
	if cerr != nil {
		reportError(cerr, source)
		os.Exit(1)
	}
	machine.RegisterChunks(chunks)

	if _, rerr := machine.Run(mainChunk); rerr != nil {
		reportError(rerr, source)
		os.Exit(1)
	}
}

func runREPL() {
	fmt.Printf("%s %s - %s\n",
		colorize(ansiCyan, "SkyHetu"), Version,
		colorize(ansiDim, "A causality-first language"))
	fmt.Printf("Type %s to exit, %s for help\n\n",
		colorize(ansiYellow, "exit"), colorize(ansiYellow, "help"))

	// VM state persists across lines: globals and causality survive.
	machine := vm.New()
	scanner := bufio.NewScanner(os.Stdin)
	prompt := colorize(ansiGreen, "sky> ")

	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println(colorize(ansiCyan, "Goodbye!"))
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "exit", "quit":
			fmt.Println(colorize(ansiCyan, "Goodbye!"))
			return
		case "help":
			printREPLHelp()
			continue
		case "clear":
			machine = vm.New()
			fmt.Println(colorize(ansiDim, "State cleared."))
			continue
		case "gc":
			machine.CollectGarbage()
			fmt.Println(colorize(ansiDim, machine.Heap.Stats()))
			continue
		case "history":
			fmt.Println(colorize(ansiDim, "Use 'print(why(variable))' to see history."))
			continue
		}

		p := parser.New(lexer.New(line))
		program, perr := p.Parse()
		if perr != nil {
			reportError(perr, line)
			continue
		}

		c := compiler.New()
		mainChunk, chunks, cerr := c.Compile(program, machine.Heap)
		if cerr != nil {
			reportError(cerr, line)
			continue
		}
		machine.RegisterChunks(chunks)

		result, rerr := machine.Run(mainChunk)
		if rerr != nil {
			reportError(rerr, line)
			continue
		}
		if result.Type != value.VAL_NIL {
			fmt.Printf("%s %s\n", colorize(ansiDim, "=>"), colorize(ansiCyan, machine.Heap.Display(result)))
		}
	}
}

func printREPLHelp() {
	fmt.Println(colorize(ansiYellow, "REPL Commands:"))
	fmt.Println("  exit, quit   Exit the REPL")
	fmt.Println("  clear        Clear state and causality history")
	fmt.Println("  gc           Collect garbage and show heap statistics")
	fmt.Println("  history      Show how to query a variable's history")
	fmt.Println("  help         Show this help")
	fmt.Println()
	fmt.Println(colorize(ansiYellow, "Language Examples:"))
	fmt.Println("  let x = 10")
	fmt.Println("  state counter = 0")
	fmt.Println("  counter -> counter + 1")
	fmt.Println("  print(why(counter))")
	fmt.Println("  fn double(n) { return n * 2 }")
}
