package parser

import (
	"fmt"
	"strconv"

	"github.com/loaf-lang/loaf/internal/lexer"
)

// ParseError reports a syntax error with source-line context, the one
// piece of the lex/parse boundary the core is specified to consume
// (spec §7 treats lex/parse as an external, opaque error kind, but a
// line-tagged message is the minimum any caller needs).
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type Parser struct {
	tokens []lexer.Token
	pos    int
}

func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

func Parse(source string) (*Program, error) {
	l := lexer.New(source)
	tokens := l.ScanTokens()
	if l.HadError() {
		return nil, fmt.Errorf("lex error: %v", l.Errors())
	}
	return New(tokens).ParseProgram()
}

func (p *Parser) peek() lexer.Token  { return p.tokens[p.pos] }
func (p *Parser) previous() lexer.Token {
	return p.tokens[p.pos-1]
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.pos++
	}
	return p.previous()
}

func (p *Parser) isAtEnd() bool { return p.peek().Type == lexer.EOF }

func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, msg string) (lexer.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return lexer.Token{}, &ParseError{Line: p.peek().Line, Message: msg}
}

func (p *Parser) skipTerminators() {
	for p.match(lexer.SEMI) {
	}
}

func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	p.skipTerminators()
	for !p.isAtEnd() {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
		p.skipTerminators()
	}
	return prog, nil
}

func (p *Parser) statement() (Node, error) {
	switch {
	case p.check(lexer.ENDPOINT):
		return p.endpointDecl()
	case p.check(lexer.TEST):
		return p.testDecl()
	default:
		return p.assignment()
	}
}

func (p *Parser) endpointDecl() (Node, error) {
	line := p.peek().Line
	p.advance() // 'endpoint'
	name, err := p.consume(lexer.IDENT, "expected endpoint name")
	if err != nil {
		return nil, err
	}
	method, err := p.consume(lexer.IDENT, "expected HTTP method")
	if err != nil {
		return nil, err
	}
	path, err := p.consume(lexer.STRING, "expected endpoint path")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.ARROW, "expected '=>' before handler"); err != nil {
		return nil, err
	}
	handler, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		base:    base{line},
		Name:    name.Lexeme,
		Method:  ParseHTTPMethod(method.Lexeme),
		Path:    path.Lexeme,
		Handler: handler,
	}, nil
}

func (p *Parser) testDecl() (Node, error) {
	line := p.peek().Line
	p.advance() // 'test'
	name, err := p.consume(lexer.IDENT, "expected test name")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.EXPECT, "expected 'expect'"); err != nil {
		return nil, err
	}
	expect, err := p.expr()
	if err != nil {
		return nil, err
	}
	inputs := map[string]Node{}
	if p.match(lexer.INPUT) {
		if _, err := p.consume(lexer.LBRACE, "expected '{' after 'input'"); err != nil {
			return nil, err
		}
		for !p.check(lexer.RBRACE) {
			key, err := p.consume(lexer.IDENT, "expected input name")
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(lexer.COLON, "expected ':' after input name"); err != nil {
				return nil, err
			}
			val, err := p.expr()
			if err != nil {
				return nil, err
			}
			inputs[key.Lexeme] = val
			if !p.match(lexer.COMMA) {
				break
			}
		}
		if _, err := p.consume(lexer.RBRACE, "expected '}' to close input block"); err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(lexer.EXPECTED, "expected 'expected'"); err != nil {
		return nil, err
	}
	expected, err := p.expr()
	if err != nil {
		return nil, err
	}
	regex := p.match(lexer.REGEX)
	return &Test{
		base:     base{line},
		Name:     name.Lexeme,
		Expect:   expect,
		Inputs:   inputs,
		Expected: expected,
		Regex:    regex,
	}, nil
}

func (p *Parser) assignment() (Node, error) {
	line := p.peek().Line
	name, err := p.consume(lexer.IDENT, "expected assignment target")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.ASSIGN, "expected '=' in assignment"); err != nil {
		return nil, err
	}
	value, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &Assignment{base: base{line}, Name: name.Lexeme, Value: value}, nil
}

func (p *Parser) expr() (Node, error) { return p.equality() }

func (p *Parser) equality() (Node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for p.match(lexer.EQ) {
		line := p.previous().Line
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		left = &Binary{base: base{line}, Op: Equal, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) additive() (Node, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.PLUS) || p.check(lexer.MINUS) {
		opTok := p.advance()
		op := Add
		if opTok.Type == lexer.MINUS {
			op = Subtract
		}
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{base: base{opTok.Line}, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) multiplicative() (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.STAR) || p.check(lexer.SLASH) {
		opTok := p.advance()
		op := Multiply
		if opTok.Type == lexer.SLASH {
			op = Divide
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &Binary{base: base{opTok.Line}, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) unary() (Node, error) {
	if p.check(lexer.MINUS) || p.check(lexer.BANG) {
		opTok := p.advance()
		op := Negate
		if opTok.Type == lexer.BANG {
			op = Not
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{base: base{opTok.Line}, Op: op, Operand: operand}, nil
	}
	return p.postfix()
}

func (p *Parser) postfix() (Node, error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.match(lexer.DOT):
			name, err := p.consume(lexer.IDENT, "expected property name after '.'")
			if err != nil {
				return nil, err
			}
			expr = &MemberAccess{base: base{name.Line}, Object: expr, Property: name.Lexeme}
		case p.check(lexer.LPAREN):
			ident, ok := expr.(*Identifier)
			if !ok {
				return nil, &ParseError{Line: p.peek().Line, Message: "call target must be an identifier"}
			}
			line := p.peek().Line
			p.advance()
			args, err := p.argList()
			if err != nil {
				return nil, err
			}
			expr = &FunctionCall{base: base{line}, Name: ident.Name, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) argList() ([]Node, error) {
	var args []Node
	if !p.check(lexer.RPAREN) {
		for {
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.match(lexer.COMMA) {
				break
			}
		}
	}
	if _, err := p.consume(lexer.RPAREN, "expected ')' to close argument list"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) primary() (Node, error) {
	tok := p.peek()
	switch tok.Type {
	case lexer.NUMBER:
		p.advance()
		return p.numberLit(tok)
	case lexer.STRING:
		p.advance()
		return &StringLit{base: base{tok.Line}, Value: tok.Lexeme}, nil
	case lexer.TRUE:
		p.advance()
		return &BooleanLit{base: base{tok.Line}, Value: true}, nil
	case lexer.FALSE:
		p.advance()
		return &BooleanLit{base: base{tok.Line}, Value: false}, nil
	case lexer.NULL:
		p.advance()
		return &NullLit{base: base{tok.Line}}, nil
	case lexer.IDENT:
		p.advance()
		return &Identifier{base: base{tok.Line}, Name: tok.Lexeme}, nil
	case lexer.LPAREN:
		p.advance()
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lexer.RPAREN, "expected ')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.LBRACE:
		return p.objectLit()
	case lexer.LBRACKET:
		return p.arrayLit()
	case lexer.PROMISE:
		p.advance()
		if _, err := p.consume(lexer.LPAREN, "expected '(' after 'promise'"); err != nil {
			return nil, err
		}
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lexer.RPAREN, "expected ')'"); err != nil {
			return nil, err
		}
		return &Promise{base: base{tok.Line}, Expr: inner}, nil
	case lexer.HTTP:
		return p.httpCall()
	default:
		return nil, &ParseError{Line: tok.Line, Message: fmt.Sprintf("unexpected token %q", tok.Lexeme)}
	}
}

func (p *Parser) numberLit(tok lexer.Token) (Node, error) {
	if iv, err := strconv.ParseInt(tok.Lexeme, 10, 64); err == nil {
		return &NumberLit{base: base{tok.Line}, IsInt: true, Int: iv, Value: float64(iv)}, nil
	}
	fv, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		return nil, &ParseError{Line: tok.Line, Message: "invalid number literal " + tok.Lexeme}
	}
	return &NumberLit{base: base{tok.Line}, Value: fv}, nil
}

func (p *Parser) objectLit() (Node, error) {
	line := p.peek().Line
	p.advance() // '{'
	obj := &ObjectLit{base: base{line}, Fields: map[string]Node{}}
	for !p.check(lexer.RBRACE) {
		var key string
		if p.check(lexer.STRING) {
			key = p.advance().Lexeme
		} else {
			k, err := p.consume(lexer.IDENT, "expected field name")
			if err != nil {
				return nil, err
			}
			key = k.Lexeme
		}
		if _, err := p.consume(lexer.COLON, "expected ':' after field name"); err != nil {
			return nil, err
		}
		val, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, exists := obj.Fields[key]; !exists {
			obj.Order = append(obj.Order, key)
		}
		obj.Fields[key] = val
		if !p.match(lexer.COMMA) {
			break
		}
	}
	if _, err := p.consume(lexer.RBRACE, "expected '}' to close object"); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Parser) arrayLit() (Node, error) {
	line := p.peek().Line
	p.advance() // '['
	arr := &ArrayLit{base: base{line}}
	for !p.check(lexer.RBRACKET) {
		elem, err := p.expr()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, elem)
		if !p.match(lexer.COMMA) {
			break
		}
	}
	if _, err := p.consume(lexer.RBRACKET, "expected ']' to close array"); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) httpCall() (Node, error) {
	line := p.peek().Line
	p.advance() // 'http'
	method, err := p.consume(lexer.IDENT, "expected HTTP method")
	if err != nil {
		return nil, err
	}
	url, err := p.expr()
	if err != nil {
		return nil, err
	}
	call := &HttpCall{base: base{line}, Method: ParseHTTPMethod(method.Lexeme), URL: url}
	if p.match(lexer.COMMA) {
		body, err := p.expr()
		if err != nil {
			return nil, err
		}
		call.Body = body
		if p.match(lexer.COMMA) {
			headers, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.Headers = headers
		}
	}
	return call, nil
}
