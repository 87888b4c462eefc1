package parser

import (
	"testing"

	"skyhetu-vm/internal/ast"
	"skyhetu-vm/internal/lexer"
	"skyhetu-vm/internal/skyerr"
)

func parse(t *testing.T, source string) *ast.Program {
	t.Helper()
	p := New(lexer.New(source))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("parse error: %s", err.Error())
	}
	return program
}

func parseError(t *testing.T, source string) *skyerr.Error {
	t.Helper()
	p := New(lexer.New(source))
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected parse error for %q", source)
	}
	return err
}

func TestLetStatement(t *testing.T) {
	program := parse(t, "let x = 42")
	if len(program.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(program.Statements))
	}
	let, ok := program.Statements[0].(*ast.LetStmt)
	if !ok {
		t.Fatalf("expected let statement, got %T", program.Statements[0])
	}
	if let.Name != "x" {
		t.Errorf("wrong name: %q", let.Name)
	}
}

func TestStateStatement(t *testing.T) {
	program := parse(t, "state counter = 0")
	state, ok := program.Statements[0].(*ast.StateStmt)
	if !ok {
		t.Fatalf("expected state statement, got %T", program.Statements[0])
	}
	if state.Name != "counter" {
		t.Errorf("wrong name: %q", state.Name)
	}
}

func TestTransitionStatement(t *testing.T) {
	program := parse(t, "counter -> counter + 1")
	tr, ok := program.Statements[0].(*ast.TransitionStmt)
	if !ok {
		t.Fatalf("expected transition statement, got %T", program.Statements[0])
	}
	if tr.Name != "counter" {
		t.Errorf("wrong name: %q", tr.Name)
	}
	if _, ok := tr.Value.(*ast.BinaryExpr); !ok {
		t.Errorf("expected binary expression value, got %T", tr.Value)
	}
}

func TestFunctionDeclaration(t *testing.T) {
	program := parse(t, "fn add(a, b) {\n\treturn a + b\n}")
	fn, ok := program.Statements[0].(*ast.FunctionStmt)
	if !ok {
		t.Fatalf("expected function statement, got %T", program.Statements[0])
	}
	if fn.Name != "add" {
		t.Errorf("wrong name: %q", fn.Name)
	}
	if len(fn.Params) != 2 || fn.Params[0] != "a" || fn.Params[1] != "b" {
		t.Errorf("wrong params: %v", fn.Params)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected 1 body statement, got %d", len(fn.Body))
	}
	if _, ok := fn.Body[0].(*ast.ReturnStmt); !ok {
		t.Errorf("expected return statement, got %T", fn.Body[0])
	}
}

func TestClassDeclaration(t *testing.T) {
	source := `class Counter {
	init() {
		this.n = 0
	}
	inc() {
		this.n = this.n + 1
		return this.n
	}
}`
	program := parse(t, source)
	class, ok := program.Statements[0].(*ast.ClassStmt)
	if !ok {
		t.Fatalf("expected class statement, got %T", program.Statements[0])
	}
	if class.Name != "Counter" {
		t.Errorf("wrong name: %q", class.Name)
	}
	if len(class.Methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(class.Methods))
	}
	if class.Methods[0].Name != "init" || class.Methods[1].Name != "inc" {
		t.Errorf("wrong method names: %q, %q", class.Methods[0].Name, class.Methods[1].Name)
	}
}

func TestIfElseChain(t *testing.T) {
	program := parse(t, "if a { b() } else if c { d() } else { e() }")
	ifStmt, ok := program.Statements[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected if statement, got %T", program.Statements[0])
	}
	elseIf, ok := ifStmt.ElseBranch.(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected chained if in else branch, got %T", ifStmt.ElseBranch)
	}
	if elseIf.ElseBranch == nil {
		t.Error("expected final else branch")
	}
}

func TestForStatement(t *testing.T) {
	program := parse(t, "for x in range(3) { print(x) }")
	forStmt, ok := program.Statements[0].(*ast.ForStmt)
	if !ok {
		t.Fatalf("expected for statement, got %T", program.Statements[0])
	}
	if forStmt.Var != "x" {
		t.Errorf("wrong loop var: %q", forStmt.Var)
	}
	if _, ok := forStmt.Iterable.(*ast.CallExpr); !ok {
		t.Errorf("expected call iterable, got %T", forStmt.Iterable)
	}
}

func TestImportExport(t *testing.T) {
	program := parse(t, "import { a, b } from \"lib/util\"\nexport let x = 1")
	imp, ok := program.Statements[0].(*ast.ImportStmt)
	if !ok {
		t.Fatalf("expected import statement, got %T", program.Statements[0])
	}
	if imp.Path != "lib/util" {
		t.Errorf("wrong path: %q", imp.Path)
	}
	if len(imp.Names) != 2 {
		t.Errorf("wrong names: %v", imp.Names)
	}
	exp, ok := program.Statements[1].(*ast.ExportStmt)
	if !ok {
		t.Fatalf("expected export statement, got %T", program.Statements[1])
	}
	if _, ok := exp.Stmt.(*ast.LetStmt); !ok {
		t.Errorf("expected exported let, got %T", exp.Stmt)
	}
}

func TestLambdaExpression(t *testing.T) {
	program := parse(t, "let double = |n| n * 2")
	let := program.Statements[0].(*ast.LetStmt)
	lambda, ok := let.Value.(*ast.LambdaExpr)
	if !ok {
		t.Fatalf("expected lambda, got %T", let.Value)
	}
	if len(lambda.Params) != 1 || lambda.Params[0] != "n" {
		t.Errorf("wrong params: %v", lambda.Params)
	}
}

func TestArrayAndIndex(t *testing.T) {
	program := parse(t, "let x = [1, 2, 3][0]")
	let := program.Statements[0].(*ast.LetStmt)
	idx, ok := let.Value.(*ast.IndexExpr)
	if !ok {
		t.Fatalf("expected index expression, got %T", let.Value)
	}
	arr, ok := idx.Left.(*ast.ArrayLiteral)
	if !ok {
		t.Fatalf("expected array literal, got %T", idx.Left)
	}
	if len(arr.Elements) != 3 {
		t.Errorf("wrong element count: %d", len(arr.Elements))
	}
}

func TestPropertyAssignment(t *testing.T) {
	program := parse(t, "obj.field = 10")
	es := program.Statements[0].(*ast.ExprStmt)
	set, ok := es.Expr.(*ast.SetExpr)
	if !ok {
		t.Fatalf("expected set expression, got %T", es.Expr)
	}
	if set.Name != "field" {
		t.Errorf("wrong property: %q", set.Name)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 '+' (2 '*' 3))"},
		{"(1 + 2) * 3", "(((1 '+' 2)) '*' 3)"},
		{"a or b and c", "(a or (b and c))"},
		{"!a == b", "(('!'a) '==' b)"},
		{"1 < 2 == true", "((1 '<' 2) '==' true)"},
	}

	for _, tt := range tests {
		program := parse(t, tt.input)
		es, ok := program.Statements[0].(*ast.ExprStmt)
		if !ok {
			t.Fatalf("%q: expected expression statement", tt.input)
		}
		if got := es.Expr.String(); got != tt.expected {
			t.Errorf("%q: got %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestInvalidAssignmentTarget(t *testing.T) {
	err := parseError(t, "1 + 2 = 3")
	if err.Kind != skyerr.InvalidAssignment {
		t.Errorf("wrong error kind: %v", err.Kind)
	}
}

func TestExpectedExpression(t *testing.T) {
	err := parseError(t, "let x = }")
	if err.Kind != skyerr.ExpectedExpression {
		t.Errorf("wrong error kind: %v", err.Kind)
	}
}

func TestErrorCarriesSpan(t *testing.T) {
	err := parseError(t, "let = 5")
	if err.Span == nil {
		t.Fatal("expected span on error")
	}
	if err.Span.Line != 1 {
		t.Errorf("wrong line: %d", err.Span.Line)
	}
}
