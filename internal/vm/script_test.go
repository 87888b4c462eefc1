package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/diff"

	"skyhetu-vm/internal/compiler"
	"skyhetu-vm/internal/lexer"
	"skyhetu-vm/internal/parser"
)

var updateScripts = os.Getenv("UPDATE_SCRIPTS") != ""

// TestScripts runs every testdata/*.skyh file and diffs the printed
// output against the matching .want golden file.
func TestScripts(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	if err != nil {
		t.Fatal(err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".skyh" {
			continue
		}
		t.Run(entry.Name(), func(t *testing.T) {
			srcPath := filepath.Join("testdata", entry.Name())
			source, err := os.ReadFile(srcPath)
			if err != nil {
				t.Fatal(err)
			}

			output := runScript(t, string(source), filepath.Dir(srcPath))

			wantPath := strings.TrimSuffix(srcPath, ".skyh") + ".want"
			if updateScripts {
				if err := os.WriteFile(wantPath, []byte(output), 0644); err != nil {
					t.Fatal(err)
				}
				return
			}

			want, err := os.ReadFile(wantPath)
			if err != nil {
				t.Fatal(err)
			}
			if d := diff.Diff(string(want), output); d != "" {
				t.Errorf("output mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func runScript(t *testing.T, source, basePath string) string {
	t.Helper()

	p := parser.New(lexer.New(source))
	program, perr := p.Parse()
	if perr != nil {
		t.Fatalf("parse error: %s", perr.Error())
	}

	machine := New()
	var out bytes.Buffer
	machine.SetOutput(&out)

	c := compiler.WithBasePath(basePath)
	mainChunk, chunks, cerr := c.Compile(program, machine.Heap)
	if cerr != nil {
		t.Fatalf("compile error: %s", cerr.Error())
	}
	machine.RegisterChunks(chunks)

	if _, rerr := machine.Run(mainChunk); rerr != nil {
		t.Fatalf("runtime error: %s", rerr.Error())
	}
	return out.String()
}

func TestModuleImport(t *testing.T) {
	dir := t.TempDir()

	module := `export fn square(n) {
	return n * n
}
export let offset = 2
`
	if err := os.WriteFile(filepath.Join(dir, "mathlib.skyh"), []byte(module), 0644); err != nil {
		t.Fatal(err)
	}

	main := `import { square, offset } from "mathlib"
print(square(6) + offset)
`
	output := runScript(t, main, dir)
	if output != "38\n" {
		t.Errorf("import output: %q", output)
	}
}

func TestModuleNotFound(t *testing.T) {
	p := parser.New(lexer.New(`import { x } from "nope"`))
	program, perr := p.Parse()
	if perr != nil {
		t.Fatal(perr)
	}
	c := compiler.WithBasePath(t.TempDir())
	_, _, cerr := c.Compile(program, New().Heap)
	if cerr == nil {
		t.Fatal("expected module not found error")
	}
}
