// Package compiler lowers the AST to bytecode in a single pass. A
// stack of function compilers models nested function definitions;
// function prototypes are allocated on the heap as they finish so the
// emitting chunk can refer to them by constant.
package compiler

import (
	"os"
	"path/filepath"

	"skyhetu-vm/internal/ast"
	"skyhetu-vm/internal/chunk"
	"skyhetu-vm/internal/heap"
	"skyhetu-vm/internal/lexer"
	"skyhetu-vm/internal/parser"
	"skyhetu-vm/internal/skyerr"
	"skyhetu-vm/internal/token"
	"skyhetu-vm/internal/value"
)

// Local is a variable slot in the current function's stack window.
type Local struct {
	Name    string
	Depth   int
	IsState bool
}

// Upvalue describes one captured variable: an index into the enclosing
// function's locals (IsLocal) or into its upvalue list.
type Upvalue struct {
	Index   byte
	IsLocal bool
}

// functionCompiler is the per-function compilation context.
type functionCompiler struct {
	name       string
	chunk      *chunk.Chunk
	locals     []Local
	upvalues   []Upvalue
	scopeDepth int
	loopStarts []int
	loopExits  [][]int
}

func newFunctionCompiler(name string) *functionCompiler {
	return &functionCompiler{
		name:  name,
		chunk: chunk.New(),
		// Slot 0 is always reserved for the closure / 'this'.
		locals: []Local{{Name: "", Depth: 0}},
	}
}

type Compiler struct {
	compilers      []*functionCompiler
	compiledChunks []*chunk.Chunk
	exports        map[string]struct{}
	basePath       string
}

func New() *Compiler {
	return &Compiler{
		compilers: []*functionCompiler{newFunctionCompiler("")},
		exports:   make(map[string]struct{}),
	}
}

// WithBasePath sets the directory against which module imports are
// resolved.
func WithBasePath(basePath string) *Compiler {
	c := New()
	c.basePath = basePath
	return c
}

// Compile lowers a program. It returns the main chunk plus the chunks
// of every compiled function so the VM can register them as GC roots.
func (c *Compiler) Compile(program *ast.Program, h *heap.Heap) (*chunk.Chunk, []*chunk.Chunk, *skyerr.Error) {
	n := len(program.Statements)
	for i, stmt := range program.Statements {
		// The last statement, if an expression, becomes the
		// program's result.
		if i == n-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				if err := c.compileExpr(es.Expr, h); err != nil {
					return nil, nil, err
				}
				continue
			}
			if err := c.compileStmt(stmt, h); err != nil {
				return nil, nil, err
			}
			c.emit(chunk.OP_NIL, 0)
			continue
		}
		if err := c.compileStmt(stmt, h); err != nil {
			return nil, nil, err
		}
	}

	if n == 0 {
		c.emit(chunk.OP_NIL, 0)
	}
	c.emit(chunk.OP_RETURN, 0)

	return c.current().chunk, c.compiledChunks, nil
}

func (c *Compiler) current() *functionCompiler {
	return c.compilers[len(c.compilers)-1]
}

// ==================== Emit helpers ====================

func (c *Compiler) emit(op chunk.OpCode, line int) {
	c.current().chunk.Write(op, line)
}

func (c *Compiler) emitByte(b byte, line int) {
	c.current().chunk.WriteByte(b, line)
}

func (c *Compiler) emitU16(v uint16, line int) {
	c.current().chunk.WriteU16(v, line)
}

func (c *Compiler) emitConstant(v value.Value, line int) {
	idx := c.current().chunk.AddConstant(v)
	c.emit(chunk.OP_CONSTANT, line)
	c.emitU16(idx, line)
}

func (c *Compiler) emitJump(op chunk.OpCode, line int) int {
	c.emit(op, line)
	c.emitU16(0xffff, line)
	return c.current().chunk.Len() - 2
}

func (c *Compiler) patchJump(offset int) {
	c.current().chunk.PatchJump(offset)
}

func (c *Compiler) emitLoop(loopStart, line int) {
	c.emit(chunk.OP_LOOP, line)
	offset := c.current().chunk.Len() - loopStart + 2
	if offset > 0xffff {
		panic("loop body too large")
	}
	c.emitU16(uint16(offset), line)
}

// ==================== Statements ====================

func (c *Compiler) compileStmt(stmt ast.Statement, h *heap.Heap) *skyerr.Error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		if err := c.compileExpr(s.Expr, h); err != nil {
			return err
		}
		c.emit(chunk.OP_POP, s.Span().Line)
		return nil

	case *ast.LetStmt:
		return c.compileBinding(s.Name, s.Value, false, s.Token.Span, h)

	case *ast.StateStmt:
		return c.compileBinding(s.Name, s.Value, true, s.Token.Span, h)

	case *ast.TransitionStmt:
		return c.compileTransition(s, h)

	case *ast.BlockStmt:
		c.beginScope()
		for _, inner := range s.Stmts {
			if err := c.compileStmt(inner, h); err != nil {
				return err
			}
		}
		c.endScope()
		return nil

	case *ast.IfStmt:
		return c.compileIf(s, h)

	case *ast.WhileStmt:
		return c.compileWhile(s, h)

	case *ast.ForStmt:
		return c.compileFor(s, h)

	case *ast.FunctionStmt:
		return c.compileFunctionDecl(s, h)

	case *ast.ClassStmt:
		return c.compileClass(s, h)

	case *ast.ReturnStmt:
		line := s.Token.Span.Line
		if s.Value != nil {
			if err := c.compileExpr(s.Value, h); err != nil {
				return err
			}
		} else {
			c.emit(chunk.OP_NIL, line)
		}
		c.emit(chunk.OP_RETURN, line)
		return nil

	case *ast.BreakStmt:
		fc := c.current()
		if len(fc.loopExits) == 0 {
			span := s.Token.Span
			return skyerr.New(skyerr.BreakOutsideLoop, &span, "break outside of loop")
		}
		exit := c.emitJump(chunk.OP_JUMP, s.Token.Span.Line)
		fc.loopExits[len(fc.loopExits)-1] = append(fc.loopExits[len(fc.loopExits)-1], exit)
		return nil

	case *ast.ContinueStmt:
		fc := c.current()
		if len(fc.loopStarts) == 0 {
			span := s.Token.Span
			return skyerr.New(skyerr.ContinueOutsideLoop, &span, "continue outside of loop")
		}
		c.emitLoop(fc.loopStarts[len(fc.loopStarts)-1], s.Token.Span.Line)
		return nil

	case *ast.ImportStmt:
		return c.compileImport(s, h)

	case *ast.ExportStmt:
		switch inner := s.Stmt.(type) {
		case *ast.FunctionStmt:
			c.exports[inner.Name] = struct{}{}
		case *ast.LetStmt:
			c.exports[inner.Name] = struct{}{}
		case *ast.StateStmt:
			c.exports[inner.Name] = struct{}{}
		case *ast.ClassStmt:
			c.exports[inner.Name] = struct{}{}
		}
		return c.compileStmt(s.Stmt, h)

	default:
		span := stmt.Span()
		return skyerr.New(skyerr.ExpectedStatement, &span, "cannot compile statement")
	}
}

func (c *Compiler) compileBinding(name string, valueExpr ast.Expression, isState bool, span token.Span, h *heap.Heap) *skyerr.Error {
	if err := c.compileExpr(valueExpr, h); err != nil {
		return err
	}

	if c.current().scopeDepth == 0 {
		idx := c.current().chunk.AddName(name)
		if isState {
			c.emit(chunk.OP_DEFINE_STATE, span.Line)
		} else {
			c.emit(chunk.OP_DEFINE_GLOBAL, span.Line)
		}
		c.emitU16(idx, span.Line)
	} else {
		// The value stays on the stack and becomes the local.
		c.addLocal(name, isState)
	}
	return nil
}

func (c *Compiler) compileTransition(s *ast.TransitionStmt, h *heap.Heap) *skyerr.Error {
	if err := c.compileExpr(s.Value, h); err != nil {
		return err
	}
	line := s.Token.Span.Line

	if slot, ok := c.resolveLocal(s.Name); ok {
		if !c.current().locals[slot].IsState {
			span := s.Token.Span
			return skyerr.Immutable(s.Name, &span)
		}
		nameIdx := c.current().chunk.AddName(s.Name)
		c.emit(chunk.OP_TRANSITION_LOCAL, line)
		c.emitU16(uint16(slot), line)
		c.emitU16(nameIdx, line)
	} else if idx, ok := c.resolveUpvalue(len(c.compilers)-1, s.Name); ok {
		nameIdx := c.current().chunk.AddName(s.Name)
		c.emit(chunk.OP_TRANSITION_UPVALUE, line)
		c.emitU16(uint16(idx), line)
		c.emitU16(nameIdx, line)
	} else {
		idx := c.current().chunk.AddName(s.Name)
		c.emit(chunk.OP_TRANSITION, line)
		c.emitU16(idx, line)
	}
	return nil
}

func (c *Compiler) compileIf(s *ast.IfStmt, h *heap.Heap) *skyerr.Error {
	line := s.Token.Span.Line

	if err := c.compileExpr(s.Condition, h); err != nil {
		return err
	}

	thenJump := c.emitJump(chunk.OP_JUMP_IF_FALSE, line)
	c.emit(chunk.OP_POP, line)

	if err := c.compileStmt(s.ThenBranch, h); err != nil {
		return err
	}

	elseJump := c.emitJump(chunk.OP_JUMP, line)
	c.patchJump(thenJump)
	c.emit(chunk.OP_POP, line)

	if s.ElseBranch != nil {
		if err := c.compileStmt(s.ElseBranch, h); err != nil {
			return err
		}
	}
	c.patchJump(elseJump)
	return nil
}

func (c *Compiler) compileWhile(s *ast.WhileStmt, h *heap.Heap) *skyerr.Error {
	line := s.Token.Span.Line
	fc := c.current()

	loopStart := fc.chunk.Len()
	fc.loopStarts = append(fc.loopStarts, loopStart)
	fc.loopExits = append(fc.loopExits, nil)

	if err := c.compileExpr(s.Condition, h); err != nil {
		return err
	}
	exitJump := c.emitJump(chunk.OP_JUMP_IF_FALSE, line)
	c.emit(chunk.OP_POP, line)

	if err := c.compileStmt(s.Body, h); err != nil {
		return err
	}
	c.emitLoop(loopStart, line)

	c.patchJump(exitJump)
	c.emit(chunk.OP_POP, line)

	c.patchLoopExits()
	return nil
}

// compileFor lowers `for x in iter` onto three hidden locals: the
// iterable, a state index and the user variable. The condition calls
// the native len.
func (c *Compiler) compileFor(s *ast.ForStmt, h *heap.Heap) *skyerr.Error {
	line := s.Token.Span.Line
	c.beginScope()

	// __iter__ holds the iterable.
	if err := c.compileExpr(s.Iterable, h); err != nil {
		return err
	}
	c.addLocal("__iter__", false)

	// __idx__ = 0
	c.emitConstant(value.NewNumber(0), line)
	c.addLocal("__idx__", true)

	// User loop variable, initially nil.
	c.emit(chunk.OP_NIL, line)
	c.addLocal(s.Var, false)

	fc := c.current()
	loopStart := fc.chunk.Len()
	fc.loopStarts = append(fc.loopStarts, loopStart)
	fc.loopExits = append(fc.loopExits, nil)

	// Condition: len(__iter__) > __idx__
	lenIdx := fc.chunk.AddName("len")
	c.emit(chunk.OP_GET_GLOBAL, line)
	c.emitU16(lenIdx, line)
	c.emitGetLocal("__iter__", line)
	c.emit(chunk.OP_CALL, line)
	c.emitByte(1, line)
	c.emitGetLocal("__idx__", line)
	c.emit(chunk.OP_GREATER, line)

	exitJump := c.emitJump(chunk.OP_JUMP_IF_FALSE, line)
	c.emit(chunk.OP_POP, line)

	// Prologue: x = __iter__[__idx__]
	c.emitGetLocal("__iter__", line)
	c.emitGetLocal("__idx__", line)
	c.emit(chunk.OP_INDEX, line)
	if slot, ok := c.resolveLocal(s.Var); ok {
		c.emit(chunk.OP_SET_LOCAL, line)
		c.emitU16(uint16(slot), line)
		c.emit(chunk.OP_POP, line)
	}

	if err := c.compileStmt(s.Body, h); err != nil {
		return err
	}

	// Epilogue: __idx__ = __idx__ + 1
	c.emitGetLocal("__idx__", line)
	c.emitConstant(value.NewNumber(1), line)
	c.emit(chunk.OP_ADD, line)
	if slot, ok := c.resolveLocal("__idx__"); ok {
		c.emit(chunk.OP_SET_LOCAL, line)
		c.emitU16(uint16(slot), line)
		c.emit(chunk.OP_POP, line)
	}

	c.emitLoop(loopStart, line)

	c.patchJump(exitJump)
	c.emit(chunk.OP_POP, line)

	c.patchLoopExits()
	c.endScope()
	return nil
}

func (c *Compiler) emitGetLocal(name string, line int) {
	if slot, ok := c.resolveLocal(name); ok {
		c.emit(chunk.OP_GET_LOCAL, line)
		c.emitU16(uint16(slot), line)
	}
}

func (c *Compiler) patchLoopExits() {
	fc := c.current()
	exits := fc.loopExits[len(fc.loopExits)-1]
	fc.loopExits = fc.loopExits[:len(fc.loopExits)-1]
	for _, exit := range exits {
		c.patchJump(exit)
	}
	fc.loopStarts = fc.loopStarts[:len(fc.loopStarts)-1]
}

func (c *Compiler) compileClass(s *ast.ClassStmt, h *heap.Heap) *skyerr.Error {
	line := s.Token.Span.Line

	global := c.current().scopeDepth == 0
	var globalIdx uint16
	if global {
		globalIdx = c.current().chunk.AddName(s.Name)
	} else {
		c.addLocal(s.Name, false)
	}

	nameIdx := c.current().chunk.AddName(s.Name)
	c.emit(chunk.OP_CLASS, line)
	c.emitU16(nameIdx, line)

	// Load the class back onto the stack for method binding.
	if global {
		c.emit(chunk.OP_DEFINE_GLOBAL, line)
		c.emitU16(globalIdx, line)
		c.emit(chunk.OP_GET_GLOBAL, line)
		c.emitU16(globalIdx, line)
	} else if slot, ok := c.resolveLocal(s.Name); ok {
		c.emit(chunk.OP_GET_LOCAL, line)
		c.emitU16(uint16(slot), line)
	}

	for _, method := range s.Methods {
		if err := c.compileMethod(method, h); err != nil {
			return err
		}
		mIdx := c.current().chunk.AddName(method.Name)
		c.emit(chunk.OP_METHOD, method.Token.Span.Line)
		c.emitU16(mIdx, method.Token.Span.Line)
	}

	c.emit(chunk.OP_POP, line)
	return nil
}

// compileMethod compiles a method body into a closure on the stack.
// Slot 0 is bound to 'this'; init returns the receiver.
func (c *Compiler) compileMethod(m *ast.FunctionStmt, h *heap.Heap) *skyerr.Error {
	line := m.Token.Span.Line

	c.compilers = append(c.compilers, newFunctionCompiler(m.Name))
	c.beginScope()
	c.current().locals[0].Name = "this"

	for _, param := range m.Params {
		c.addLocal(param, false)
	}
	for _, stmt := range m.Body {
		if err := c.compileStmt(stmt, h); err != nil {
			return err
		}
	}

	if m.Name == "init" {
		// Construction always yields the instance.
		c.emit(chunk.OP_GET_LOCAL, line)
		c.emitU16(0, line)
		c.emit(chunk.OP_RETURN, line)
	} else {
		c.emit(chunk.OP_NIL, line)
		c.emit(chunk.OP_RETURN, line)
	}

	c.finishFunction(m.Name, m.Params, line, h)
	return nil
}

func (c *Compiler) compileFunctionDecl(s *ast.FunctionStmt, h *heap.Heap) *skyerr.Error {
	line := s.Token.Span.Line

	global := c.current().scopeDepth == 0
	var globalIdx uint16
	if global {
		globalIdx = c.current().chunk.AddName(s.Name)
	} else {
		// Declare before compiling the body so recursion resolves to
		// the function itself.
		c.addLocal(s.Name, false)
	}

	c.compilers = append(c.compilers, newFunctionCompiler(s.Name))
	c.beginScope()

	for _, param := range s.Params {
		c.addLocal(param, false)
	}
	for _, stmt := range s.Body {
		if err := c.compileStmt(stmt, h); err != nil {
			return err
		}
	}

	c.emit(chunk.OP_NIL, line)
	c.emit(chunk.OP_RETURN, line)

	c.finishFunction(s.Name, s.Params, line, h)

	if global {
		c.emit(chunk.OP_DEFINE_GLOBAL, line)
		c.emitU16(globalIdx, line)
	}
	return nil
}

// finishFunction pops the current function compiler, allocates the
// prototype and emits the Closure instruction with its upvalue
// descriptors into the enclosing chunk.
func (c *Compiler) finishFunction(name string, params []string, line int, h *heap.Heap) {
	fc := c.compilers[len(c.compilers)-1]
	c.compilers = c.compilers[:len(c.compilers)-1]

	c.compiledChunks = append(c.compiledChunks, fc.chunk)

	fn := &heap.Function{
		Name:         name,
		Params:       params,
		Chunk:        fc.chunk,
		UpvalueCount: len(fc.upvalues),
	}
	handle := h.AllocFunction(fn)

	funcIdx := c.current().chunk.AddConstant(value.NewFunction(handle))
	c.emit(chunk.OP_CLOSURE, line)
	c.emitU16(funcIdx, line)

	for _, upvalue := range fc.upvalues {
		if upvalue.IsLocal {
			c.emitByte(1, line)
		} else {
			c.emitByte(0, line)
		}
		c.emitByte(upvalue.Index, line)
	}
}

// compileImport reads the referenced module and compiles its
// statements into the current chunk. The names list is recorded but
// not yet used to filter visibility.
func (c *Compiler) compileImport(s *ast.ImportStmt, h *heap.Heap) *skyerr.Error {
	span := s.Token.Span

	modulePath := s.Path
	if c.basePath != "" {
		modulePath = filepath.Join(c.basePath, modulePath)
	}
	if filepath.Ext(modulePath) == "" {
		modulePath += ".skyh"
	}

	source, err := os.ReadFile(modulePath)
	if err != nil {
		return skyerr.New(skyerr.ModuleNotFound, &span, "module not found: %s: %v", s.Path, err)
	}

	p := parser.New(lexer.New(string(source)))
	program, perr := p.Parse()
	if perr != nil {
		return skyerr.New(skyerr.ModuleNotFound, &span, "module not found: %s: %s", s.Path, perr.Msg)
	}

	for _, stmt := range program.Statements {
		if err := c.compileStmt(stmt, h); err != nil {
			return err
		}
	}

	_ = s.Names
	return nil
}

// ==================== Expressions ====================

func (c *Compiler) compileExpr(expr ast.Expression, h *heap.Heap) *skyerr.Error {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.emitConstant(value.NewNumber(e.Value), e.Span().Line)
		return nil

	case *ast.StringLiteral:
		c.emitConstant(value.NewString(e.Value), e.Span().Line)
		return nil

	case *ast.BoolLiteral:
		if e.Value {
			c.emit(chunk.OP_TRUE, e.Span().Line)
		} else {
			c.emit(chunk.OP_FALSE, e.Span().Line)
		}
		return nil

	case *ast.NilLiteral:
		c.emit(chunk.OP_NIL, e.Span().Line)
		return nil

	case *ast.Identifier:
		line := e.Span().Line
		if slot, ok := c.resolveLocal(e.Name); ok {
			c.emit(chunk.OP_GET_LOCAL, line)
			c.emitU16(uint16(slot), line)
		} else if idx, ok := c.resolveUpvalue(len(c.compilers)-1, e.Name); ok {
			c.emit(chunk.OP_GET_UPVALUE, line)
			c.emitU16(uint16(idx), line)
		} else {
			idx := c.current().chunk.AddName(e.Name)
			c.emit(chunk.OP_GET_GLOBAL, line)
			c.emitU16(idx, line)
		}
		return nil

	case *ast.BinaryExpr:
		if err := c.compileExpr(e.Left, h); err != nil {
			return err
		}
		if err := c.compileExpr(e.Right, h); err != nil {
			return err
		}
		line := e.Span().Line
		switch e.Op {
		case token.PLUS:
			c.emit(chunk.OP_ADD, line)
		case token.MINUS:
			c.emit(chunk.OP_SUBTRACT, line)
		case token.STAR:
			c.emit(chunk.OP_MULTIPLY, line)
		case token.SLASH:
			c.emit(chunk.OP_DIVIDE, line)
		case token.PERCENT:
			c.emit(chunk.OP_MODULO, line)
		case token.EQ:
			c.emit(chunk.OP_EQUAL, line)
		case token.NEQ:
			c.emit(chunk.OP_NOT_EQUAL, line)
		case token.LT:
			c.emit(chunk.OP_LESS, line)
		case token.LTE:
			c.emit(chunk.OP_LESS_EQUAL, line)
		case token.GT:
			c.emit(chunk.OP_GREATER, line)
		case token.GTE:
			c.emit(chunk.OP_GREATER_EQUAL, line)
		}
		return nil

	case *ast.UnaryExpr:
		if err := c.compileExpr(e.Operand, h); err != nil {
			return err
		}
		line := e.Span().Line
		if e.Op == token.MINUS {
			c.emit(chunk.OP_NEGATE, line)
		} else {
			c.emit(chunk.OP_NOT, line)
		}
		return nil

	case *ast.LogicalExpr:
		if err := c.compileExpr(e.Left, h); err != nil {
			return err
		}
		line := e.Span().Line
		// Short-circuit relies on the jumps leaving the condition on
		// the stack.
		var jump int
		if e.Op == token.AND {
			jump = c.emitJump(chunk.OP_JUMP_IF_FALSE, line)
		} else {
			jump = c.emitJump(chunk.OP_JUMP_IF_TRUE, line)
		}
		c.emit(chunk.OP_POP, line)
		if err := c.compileExpr(e.Right, h); err != nil {
			return err
		}
		c.patchJump(jump)
		return nil

	case *ast.GroupingExpr:
		return c.compileExpr(e.Expr, h)

	case *ast.CallExpr:
		return c.compileCall(e, h)

	case *ast.LambdaExpr:
		return c.compileLambda(e, h)

	case *ast.ArrayLiteral:
		line := e.Span().Line
		for _, elem := range e.Elements {
			if err := c.compileExpr(elem, h); err != nil {
				return err
			}
		}
		c.emit(chunk.OP_ARRAY, line)
		c.emitByte(byte(len(e.Elements)), line)
		return nil

	case *ast.IndexExpr:
		if err := c.compileExpr(e.Left, h); err != nil {
			return err
		}
		if err := c.compileExpr(e.Index, h); err != nil {
			return err
		}
		c.emit(chunk.OP_INDEX, e.Span().Line)
		return nil

	case *ast.GetExpr:
		if err := c.compileExpr(e.Object, h); err != nil {
			return err
		}
		idx := c.current().chunk.AddName(e.Name)
		c.emit(chunk.OP_GET_PROPERTY, e.Span().Line)
		c.emitU16(idx, e.Span().Line)
		return nil

	case *ast.SetExpr:
		if err := c.compileExpr(e.Object, h); err != nil {
			return err
		}
		if err := c.compileExpr(e.Value, h); err != nil {
			return err
		}
		idx := c.current().chunk.AddName(e.Name)
		c.emit(chunk.OP_SET_PROPERTY, e.Span().Line)
		c.emitU16(idx, e.Span().Line)
		return nil

	default:
		span := expr.Span()
		return skyerr.New(skyerr.ExpectedExpression, &span, "cannot compile expression")
	}
}

// compileCall handles the opcode-fused built-ins print, why and time
// before falling back to a regular call.
func (c *Compiler) compileCall(e *ast.CallExpr, h *heap.Heap) *skyerr.Error {
	line := e.Span().Line

	if ident, ok := e.Callee.(*ast.Identifier); ok {
		switch ident.Name {
		case "print":
			for _, arg := range e.Args {
				if err := c.compileExpr(arg, h); err != nil {
					return err
				}
			}
			c.emit(chunk.OP_PRINT, line)
			c.emitByte(byte(len(e.Args)), line)
			return nil
		case "why":
			if len(e.Args) != 1 {
				span := e.Span()
				return skyerr.Arity(1, len(e.Args), &span)
			}
			if varIdent, ok := e.Args[0].(*ast.Identifier); ok {
				idx := c.current().chunk.AddName(varIdent.Name)
				c.emit(chunk.OP_WHY, line)
				c.emitU16(idx, line)
				return nil
			}
			// A non-identifier argument falls through to a regular
			// call and fails at runtime.
		case "time":
			if len(e.Args) == 0 {
				c.emit(chunk.OP_TIME, line)
				return nil
			}
		}
	}

	if err := c.compileExpr(e.Callee, h); err != nil {
		return err
	}
	for _, arg := range e.Args {
		if err := c.compileExpr(arg, h); err != nil {
			return err
		}
	}
	c.emit(chunk.OP_CALL, line)
	c.emitByte(byte(len(e.Args)), line)
	return nil
}

func (c *Compiler) compileLambda(e *ast.LambdaExpr, h *heap.Heap) *skyerr.Error {
	line := e.Span().Line

	c.compilers = append(c.compilers, newFunctionCompiler("<lambda>"))
	c.beginScope()

	for _, param := range e.Params {
		c.addLocal(param, false)
	}
	if err := c.compileExpr(e.Body, h); err != nil {
		return err
	}
	c.emit(chunk.OP_RETURN, line)

	c.finishFunction("<lambda>", e.Params, line, h)
	return nil
}

// ==================== Scope management ====================

func (c *Compiler) beginScope() {
	c.current().scopeDepth++
}

func (c *Compiler) endScope() {
	fc := c.current()
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].Depth > fc.scopeDepth {
		c.emit(chunk.OP_POP, 0)
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

func (c *Compiler) addLocal(name string, isState bool) {
	fc := c.current()
	fc.locals = append(fc.locals, Local{Name: name, Depth: fc.scopeDepth, IsState: isState})
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	locals := c.current().locals
	for i := len(locals) - 1; i >= 0; i-- {
		if locals[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// resolveUpvalue walks enclosing compilers looking for name, adding an
// upvalue descriptor to every intermediate context.
func (c *Compiler) resolveUpvalue(compilerIdx int, name string) (int, bool) {
	if compilerIdx == 0 {
		return 0, false
	}

	parent := c.compilers[compilerIdx-1]
	for i := len(parent.locals) - 1; i >= 0; i-- {
		if parent.locals[i].Name == name {
			return c.addUpvalue(compilerIdx, byte(i), true), true
		}
	}

	if idx, ok := c.resolveUpvalue(compilerIdx-1, name); ok {
		return c.addUpvalue(compilerIdx, byte(idx), false), true
	}

	return 0, false
}

func (c *Compiler) addUpvalue(compilerIdx int, index byte, isLocal bool) int {
	fc := c.compilers[compilerIdx]

	for i, upvalue := range fc.upvalues {
		if upvalue.Index == index && upvalue.IsLocal == isLocal {
			return i
		}
	}

	fc.upvalues = append(fc.upvalues, Upvalue{Index: index, IsLocal: isLocal})
	return len(fc.upvalues) - 1
}
