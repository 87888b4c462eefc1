package parser

import (
	"strconv"

	"skyhetu-vm/internal/ast"
	"skyhetu-vm/internal/lexer"
	"skyhetu-vm/internal/skyerr"
	"skyhetu-vm/internal/token"
)

// Parser is a recursive descent parser over the lexer's token stream.
// It aborts on the first error.
type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Fill curToken and peekToken.
	p.advance()
	p.advance()
	return p
}

func (p *Parser) Parse() (*ast.Program, *skyerr.Error) {
	program := &ast.Program{}

	for !p.isAtEnd() {
		p.skipNewlines()
		if p.isAtEnd() {
			break
		}
		stmt, err := p.declaration()
		if err != nil {
			return nil, err
		}
		program.Statements = append(program.Statements, stmt)
	}

	return program, nil
}

// ==================== Declarations ====================

func (p *Parser) declaration() (ast.Statement, *skyerr.Error) {
	switch p.curToken.Type {
	case token.LET:
		return p.letDeclaration()
	case token.STATE:
		return p.stateDeclaration()
	case token.FN:
		return p.functionDeclaration()
	case token.CLASS:
		return p.classDeclaration()
	case token.IMPORT:
		return p.importDeclaration()
	case token.EXPORT:
		return p.exportDeclaration()
	default:
		return p.statement()
	}
}

func (p *Parser) letDeclaration() (ast.Statement, *skyerr.Error) {
	letTok := p.curToken
	p.advance() // consume 'let'

	name, err := p.expectIdent("expected variable name")
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.ASSIGN, "expected '=' after variable name"); err != nil {
		return nil, err
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()

	return &ast.LetStmt{Token: letTok, Name: name, Value: value}, nil
}

func (p *Parser) stateDeclaration() (ast.Statement, *skyerr.Error) {
	stateTok := p.curToken
	p.advance() // consume 'state'

	name, err := p.expectIdent("expected state variable name")
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.ASSIGN, "expected '=' after state name"); err != nil {
		return nil, err
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()

	return &ast.StateStmt{Token: stateTok, Name: name, Value: value}, nil
}

func (p *Parser) functionDeclaration() (ast.Statement, *skyerr.Error) {
	fnTok := p.curToken
	p.advance() // consume 'fn'

	name, err := p.expectIdent("expected function name")
	if err != nil {
		return nil, err
	}

	params, err := p.parameterList("function")
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if err := p.expect(token.LBRACE, "expected '{' before function body"); err != nil {
		return nil, err
	}
	body, err := p.blockStatements()
	if err != nil {
		return nil, err
	}

	return &ast.FunctionStmt{Token: fnTok, Name: name, Params: params, Body: body}, nil
}

func (p *Parser) parameterList(what string) ([]string, *skyerr.Error) {
	if err := p.expect(token.LPAREN, "expected '(' after "+what+" name"); err != nil {
		return nil, err
	}
	var params []string
	if !p.check(token.RPAREN) {
		for {
			param, err := p.expectIdent("expected parameter name")
			if err != nil {
				return nil, err
			}
			params = append(params, param)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if err := p.expect(token.RPAREN, "expected ')' after parameters"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) classDeclaration() (ast.Statement, *skyerr.Error) {
	classTok := p.curToken
	p.advance() // consume 'class'

	name, err := p.expectIdent("expected class name")
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if err := p.expect(token.LBRACE, "expected '{' before class body"); err != nil {
		return nil, err
	}
	p.skipNewlines()

	// Methods omit the 'fn' keyword: name(params) { body }
	var methods []*ast.FunctionStmt
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		method, err := p.methodDeclaration()
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
		p.skipNewlines()
	}

	if err := p.expect(token.RBRACE, "expected '}' after class body"); err != nil {
		return nil, err
	}

	return &ast.ClassStmt{Token: classTok, Name: name, Methods: methods}, nil
}

func (p *Parser) methodDeclaration() (*ast.FunctionStmt, *skyerr.Error) {
	nameTok := p.curToken
	name, err := p.expectIdent("expected method name")
	if err != nil {
		return nil, err
	}

	params, err := p.parameterList("method")
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if err := p.expect(token.LBRACE, "expected '{' before method body"); err != nil {
		return nil, err
	}
	body, err := p.blockStatements()
	if err != nil {
		return nil, err
	}

	return &ast.FunctionStmt{Token: nameTok, Name: name, Params: params, Body: body}, nil
}

func (p *Parser) importDeclaration() (ast.Statement, *skyerr.Error) {
	importTok := p.curToken
	p.advance() // consume 'import'

	if err := p.expect(token.LBRACE, "expected '{' after import"); err != nil {
		return nil, err
	}
	var names []string
	if !p.check(token.RBRACE) {
		for {
			name, err := p.expectIdent("expected import name")
			if err != nil {
				return nil, err
			}
			names = append(names, name)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if err := p.expect(token.RBRACE, "expected '}' after import names"); err != nil {
		return nil, err
	}
	if err := p.expect(token.FROM, "expected 'from' after import names"); err != nil {
		return nil, err
	}

	if !p.check(token.STRING) {
		return nil, p.errExpected("expected module path string")
	}
	path := p.curToken.Literal
	p.advance()
	p.skipNewlines()

	return &ast.ImportStmt{Token: importTok, Names: names, Path: path}, nil
}

func (p *Parser) exportDeclaration() (ast.Statement, *skyerr.Error) {
	exportTok := p.curToken
	p.advance() // consume 'export'

	var stmt ast.Statement
	var err *skyerr.Error
	switch p.curToken.Type {
	case token.FN:
		stmt, err = p.functionDeclaration()
	case token.LET:
		stmt, err = p.letDeclaration()
	case token.STATE:
		stmt, err = p.stateDeclaration()
	case token.CLASS:
		stmt, err = p.classDeclaration()
	default:
		return nil, skyerr.New(skyerr.ExpectedStatement, p.curSpan(),
			"expected declaration after export, got %s", p.curToken.Type.Display())
	}
	if err != nil {
		return nil, err
	}

	return &ast.ExportStmt{Token: exportTok, Stmt: stmt}, nil
}

// ==================== Statements ====================

func (p *Parser) statement() (ast.Statement, *skyerr.Error) {
	switch p.curToken.Type {
	case token.IF:
		return p.ifStatement()
	case token.WHILE:
		return p.whileStatement()
	case token.FOR:
		return p.forStatement()
	case token.RETURN:
		return p.returnStatement()
	case token.BREAK:
		tok := p.curToken
		p.advance()
		p.skipNewlines()
		return &ast.BreakStmt{Token: tok}, nil
	case token.CONTINUE:
		tok := p.curToken
		p.advance()
		p.skipNewlines()
		return &ast.ContinueStmt{Token: tok}, nil
	case token.LBRACE:
		return p.blockStatement()
	default:
		return p.expressionOrTransition()
	}
}

// expressionOrTransition distinguishes `name -> expr` from a plain
// expression statement by one token of lookahead.
func (p *Parser) expressionOrTransition() (ast.Statement, *skyerr.Error) {
	if p.curToken.Type == token.IDENTIFIER && p.peekToken.Type == token.ARROW {
		name := p.curToken.Literal
		p.advance() // consume identifier
		arrowTok := p.curToken
		p.advance() // consume '->'

		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		p.skipNewlines()
		return &ast.TransitionStmt{Token: arrowTok, Name: name, Value: value}, nil
	}

	expr, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	return &ast.ExprStmt{Expr: expr}, nil
}

func (p *Parser) ifStatement() (ast.Statement, *skyerr.Error) {
	ifTok := p.curToken
	p.advance() // consume 'if'

	condition, err := p.expression()
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if !p.check(token.LBRACE) {
		return nil, p.errExpected("expected '{' after if condition")
	}
	thenBranch, err := p.blockStatement()
	if err != nil {
		return nil, err
	}

	var elseBranch ast.Statement
	if p.match(token.ELSE) {
		p.skipNewlines()
		if p.check(token.IF) {
			elseBranch, err = p.ifStatement()
		} else if p.check(token.LBRACE) {
			elseBranch, err = p.blockStatement()
		} else {
			return nil, p.errExpected("expected '{' after else")
		}
		if err != nil {
			return nil, err
		}
	}

	return &ast.IfStmt{Token: ifTok, Condition: condition, ThenBranch: thenBranch, ElseBranch: elseBranch}, nil
}

func (p *Parser) whileStatement() (ast.Statement, *skyerr.Error) {
	whileTok := p.curToken
	p.advance() // consume 'while'

	condition, err := p.expression()
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if !p.check(token.LBRACE) {
		return nil, p.errExpected("expected '{' after while condition")
	}
	body, err := p.blockStatement()
	if err != nil {
		return nil, err
	}

	return &ast.WhileStmt{Token: whileTok, Condition: condition, Body: body}, nil
}

func (p *Parser) forStatement() (ast.Statement, *skyerr.Error) {
	forTok := p.curToken
	p.advance() // consume 'for'

	name, err := p.expectIdent("expected loop variable name")
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.IN, "expected 'in' after loop variable"); err != nil {
		return nil, err
	}
	iterable, err := p.expression()
	if err != nil {
		return nil, err
	}

	p.skipNewlines()
	if !p.check(token.LBRACE) {
		return nil, p.errExpected("expected '{' after for clause")
	}
	body, err := p.blockStatement()
	if err != nil {
		return nil, err
	}

	return &ast.ForStmt{Token: forTok, Var: name, Iterable: iterable, Body: body}, nil
}

func (p *Parser) returnStatement() (ast.Statement, *skyerr.Error) {
	returnTok := p.curToken
	p.advance() // consume 'return'

	var value ast.Expression
	if !p.check(token.NEWLINE) && !p.check(token.RBRACE) && !p.isAtEnd() {
		var err *skyerr.Error
		value, err = p.expression()
		if err != nil {
			return nil, err
		}
	}
	p.skipNewlines()

	return &ast.ReturnStmt{Token: returnTok, Value: value}, nil
}

func (p *Parser) blockStatement() (*ast.BlockStmt, *skyerr.Error) {
	braceTok := p.curToken
	if err := p.expect(token.LBRACE, "expected '{'"); err != nil {
		return nil, err
	}
	stmts, err := p.blockStatements()
	if err != nil {
		return nil, err
	}
	return &ast.BlockStmt{Token: braceTok, Stmts: stmts}, nil
}

// blockStatements parses statements until '}'. The opening brace has
// already been consumed.
func (p *Parser) blockStatements() ([]ast.Statement, *skyerr.Error) {
	var stmts []ast.Statement
	p.skipNewlines()
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		stmt, err := p.declaration()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
	if err := p.expect(token.RBRACE, "expected '}' after block"); err != nil {
		return nil, err
	}
	p.skipNewlines()
	return stmts, nil
}

// ==================== Expressions ====================

func (p *Parser) expression() (ast.Expression, *skyerr.Error) {
	return p.assignment()
}

func (p *Parser) assignment() (ast.Expression, *skyerr.Error) {
	expr, err := p.orExpr()
	if err != nil {
		return nil, err
	}

	if p.check(token.ASSIGN) {
		equalsSpan := p.curToken.Span
		p.advance()
		value, err := p.assignment()
		if err != nil {
			return nil, err
		}

		if get, ok := expr.(*ast.GetExpr); ok {
			return &ast.SetExpr{Object: get.Object, Name: get.Name, Value: value}, nil
		}
		return nil, skyerr.New(skyerr.InvalidAssignment, &equalsSpan, "invalid assignment")
	}

	return expr, nil
}

func (p *Parser) orExpr() (ast.Expression, *skyerr.Error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.match(token.OR) {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpr{Left: left, Op: token.OR, Right: right}
	}
	return left, nil
}

func (p *Parser) andExpr() (ast.Expression, *skyerr.Error) {
	left, err := p.equality()
	if err != nil {
		return nil, err
	}
	for p.match(token.AND) {
		right, err := p.equality()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpr{Left: left, Op: token.AND, Right: right}
	}
	return left, nil
}

func (p *Parser) equality() (ast.Expression, *skyerr.Error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for p.check(token.EQ) || p.check(token.NEQ) {
		op := p.curToken.Type
		p.advance()
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) comparison() (ast.Expression, *skyerr.Error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.check(token.LT) || p.check(token.LTE) || p.check(token.GT) || p.check(token.GTE) {
		op := p.curToken.Type
		p.advance()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) term() (ast.Expression, *skyerr.Error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.check(token.PLUS) || p.check(token.MINUS) {
		op := p.curToken.Type
		p.advance()
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) factor() (ast.Expression, *skyerr.Error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.check(token.STAR) || p.check(token.SLASH) || p.check(token.PERCENT) {
		op := p.curToken.Type
		p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) unary() (ast.Expression, *skyerr.Error) {
	if p.check(token.MINUS) || p.check(token.BANG) {
		opTok := p.curToken
		p.advance()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Token: opTok, Op: opTok.Type, Operand: operand}, nil
	}
	return p.call()
}

func (p *Parser) call() (ast.Expression, *skyerr.Error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		if p.match(token.LPAREN) {
			expr, err = p.finishCall(expr)
			if err != nil {
				return nil, err
			}
		} else if p.match(token.DOT) {
			name, err := p.expectIdent("expected property name after '.'")
			if err != nil {
				return nil, err
			}
			expr = &ast.GetExpr{Object: expr, Name: name}
		} else if p.match(token.LBRACKET) {
			index, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(token.RBRACKET, "expected ']' after index"); err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Left: expr, Index: index}
		} else {
			break
		}
	}

	return expr, nil
}

func (p *Parser) finishCall(callee ast.Expression) (ast.Expression, *skyerr.Error) {
	var args []ast.Expression
	if !p.check(token.RPAREN) {
		for {
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if err := p.expect(token.RPAREN, "expected ')' after arguments"); err != nil {
		return nil, err
	}
	return &ast.CallExpr{Callee: callee, Args: args}, nil
}

func (p *Parser) primary() (ast.Expression, *skyerr.Error) {
	tok := p.curToken

	switch tok.Type {
	case token.NUMBER:
		n, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, skyerr.New(skyerr.InvalidNumber, &tok.Span, "invalid number '%s'", tok.Literal)
		}
		p.advance()
		return &ast.NumberLiteral{Token: tok, Value: n}, nil
	case token.STRING:
		p.advance()
		return &ast.StringLiteral{Token: tok, Value: tok.Literal}, nil
	case token.TRUE:
		p.advance()
		return &ast.BoolLiteral{Token: tok, Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.BoolLiteral{Token: tok, Value: false}, nil
	case token.NIL:
		p.advance()
		return &ast.NilLiteral{Token: tok}, nil
	case token.IDENTIFIER:
		p.advance()
		return &ast.Identifier{Token: tok, Name: tok.Literal}, nil
	case token.LPAREN:
		p.advance()
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN, "expected ')' after expression"); err != nil {
			return nil, err
		}
		return &ast.GroupingExpr{Token: tok, Expr: expr}, nil
	case token.LBRACKET:
		p.advance()
		var elements []ast.Expression
		if !p.check(token.RBRACKET) {
			for {
				elem, err := p.expression()
				if err != nil {
					return nil, err
				}
				elements = append(elements, elem)
				if !p.match(token.COMMA) {
					break
				}
			}
		}
		if err := p.expect(token.RBRACKET, "expected ']' after array elements"); err != nil {
			return nil, err
		}
		return &ast.ArrayLiteral{Token: tok, Elements: elements}, nil
	case token.PIPE:
		return p.lambda()
	case token.ILLEGAL:
		if tok.Literal == "unterminated string" {
			return nil, skyerr.New(skyerr.UnterminatedString, &tok.Span, "unterminated string")
		}
		return nil, skyerr.New(skyerr.UnexpectedCharacter, &tok.Span, "unexpected character '%s'", tok.Literal)
	default:
		return nil, skyerr.New(skyerr.ExpectedExpression, &tok.Span,
			"expected expression, got %s", tok.Type.Display())
	}
}

// lambda parses |params| body where body is a single expression.
func (p *Parser) lambda() (ast.Expression, *skyerr.Error) {
	pipeTok := p.curToken
	p.advance() // consume opening '|'

	var params []string
	if !p.check(token.PIPE) {
		for {
			param, err := p.expectIdent("expected parameter name")
			if err != nil {
				return nil, err
			}
			params = append(params, param)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if err := p.expect(token.PIPE, "expected '|' after lambda parameters"); err != nil {
		return nil, err
	}

	body, err := p.expression()
	if err != nil {
		return nil, err
	}

	return &ast.LambdaExpr{Token: pipeTok, Params: params, Body: body}, nil
}

// ==================== Helpers ====================

func (p *Parser) advance() {
	p.curToken = p.peekToken
	if p.l != nil {
		p.peekToken = p.l.NextToken()
	}
}

func (p *Parser) isAtEnd() bool {
	return p.curToken.Type == token.EOF
}

func (p *Parser) check(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) match(t token.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) curSpan() *token.Span {
	span := p.curToken.Span
	return &span
}

func (p *Parser) expect(t token.TokenType, message string) *skyerr.Error {
	if p.check(t) {
		p.advance()
		return nil
	}
	return p.errExpected(message)
}

func (p *Parser) errExpected(message string) *skyerr.Error {
	return skyerr.New(skyerr.ExpectedToken, p.curSpan(),
		"%s, got %s", message, p.curToken.Type.Display())
}

func (p *Parser) expectIdent(message string) (string, *skyerr.Error) {
	if p.curToken.Type == token.IDENTIFIER {
		name := p.curToken.Literal
		p.advance()
		return name, nil
	}
	return "", p.errExpected(message)
}

func (p *Parser) skipNewlines() {
	for p.match(token.NEWLINE) || p.match(token.SEMICOLON) {
	}
}
