// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"strings"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// parser turns a pre-lexed token slice into a Node tree via a
// precedence-climbing recursive descent over the grammar of spec.md §4.2
// (operators listed there in ascending precedence order; this parser's
// function nesting runs the opposite direction, loosest-binding
// outermost).
type parser struct {
	toks []Token
	pos  int
}

func newParser(src string) (*parser, error) {
	lx := NewLexer(src)
	var toks []Token
	for {
		t, err := lx.Next()
		if err != nil {
			return nil, &CompileError{Kind: "syntax", Cursor: lx.pos, Hint: err.Error()}
		}
		toks = append(toks, t)
		if t.Kind == TokEOF {
			break
		}
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() Token  { return p.toks[p.pos] }
func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atOp(op string) bool {
	t := p.peek()
	return t.Kind == TokOp && t.Text == op
}

func (p *parser) expect(kind TokenKind, text string) (Token, error) {
	t := p.peek()
	if t.Kind != kind || (text != "" && t.Text != text) {
		return Token{}, &CompileError{Kind: "syntax", Cursor: t.Pos, Hint: "expected " + text}
	}
	return p.advance(), nil
}

// parseProgram parses a full KaRL statement sequence and checks that all
// input was consumed.
func parseProgram(src string) (Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	node, err := p.parseSequence()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokEOF {
		return nil, &CompileError{Kind: "syntax", Cursor: p.peek().Pos, Hint: "unexpected trailing input"}
	}
	return node, nil
}

// parseSequence handles ';' (left-assoc, lowest precedence), building a
// Composite-ternary "both" node over every statement in the chain
// (evaluates all, returns the max — spec.md §4.2).
func (p *parser) parseSequence() (Node, error) {
	first, err := p.parseReturnRight()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.atOp(";") {
		p.advance()
		if p.peek().Kind == TokEOF {
			break
		}
		next, err := p.parseReturnRight()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Ternary{Kind: "both", Children: children}, nil
}

// parseReturnRight handles ';>' (left-assoc), building a
// Composite-ternary "return_right" node (evaluates all, returns the
// last — spec.md §4.2).
func (p *parser) parseReturnRight() (Node, error) {
	first, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.atOp(";>") {
		p.advance()
		next, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Ternary{Kind: "return_right", Children: children}, nil
}

// parseImplies handles '=>' (right-assoc).
func (p *parser) parseImplies() (Node, error) {
	left, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if p.atOp("=>") {
		p.advance()
		right, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "=>", Left: left, Right: right}, nil
	}
	return left, nil
}

// parseAssign handles '=' (right-assoc).
func (p *parser) parseAssign() (Node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.atOp("=") {
		p.advance()
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "=", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atOp("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atOp("&&") {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Node, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.atOp("==") || p.atOp("!=") {
		op := p.advance().Text
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.atOp("<") || p.atOp("<=") || p.atOp(">") || p.atOp(">=") {
		op := p.advance().Text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atOp("+") || p.atOp("-") {
		op := p.advance().Text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atOp("*") || p.atOp("/") || p.atOp("%") {
		op := p.advance().Text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.atOp("!") || p.atOp("-") {
		op := p.advance().Text
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Child: child}, nil
	}
	if p.atOp("++") || p.atOp("--") {
		op := p.advance().Text
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op + "pre", Child: child}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.peek().Kind == TokLBracket:
			p.advance()
			idx, err := p.parseSequence()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket, "]"); err != nil {
				return nil, err
			}
			base, ok := node.(Assignable)
			if !ok {
				return nil, &CompileError{Kind: "syntax", Cursor: p.peek().Pos, Hint: "[...] requires a variable base"}
			}
			node = &Index{Base: base, Idx: idx}
		case p.atOp("++") || p.atOp("--"):
			op := p.advance().Text
			node = &Unary{Op: op + "post", Child: node}
		default:
			return node, nil
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.Kind {
	case TokInteger:
		p.advance()
		return &Leaf{Value: knowledge.NewInteger(t.Int)}, nil
	case TokDouble:
		p.advance()
		return &Leaf{Value: knowledge.NewDouble(t.Double)}, nil
	case TokString:
		p.advance()
		return &Leaf{Value: knowledge.NewString(t.Text)}, nil
	case TokHash:
		return p.parseSystemCall()
	case TokLParen:
		p.advance()
		inner, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokIdent:
		p.advance()
		if p.peek().Kind == TokLParen {
			return p.parseCallArgs(t.Text, t.Pos)
		}
		return &Variable{Name: t.Text, ExpandEachEvaluation: strings.ContainsRune(t.Text, '{')}, nil
	}
	return nil, &CompileError{Kind: "syntax", Cursor: t.Pos, Hint: "unexpected token " + t.Text}
}

func (p *parser) parseSystemCall() (Node, error) {
	hashPos := p.advance().Pos // consume '#'
	name, err := p.expect(TokIdent, "")
	if err != nil {
		return nil, err
	}
	args, err := p.parseParenArgs()
	if err != nil {
		return nil, err
	}
	return &SystemCall{Name: name.Text, Args: args, Cursor: hashPos}, nil
}

func (p *parser) parseCallArgs(name string, pos int) (Node, error) {
	args, err := p.parseParenArgs()
	if err != nil {
		return nil, err
	}
	return &Call{Name: name, Args: args}, nil
}

func (p *parser) parseParenArgs() ([]Node, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var args []Node
	if p.peek().Kind != TokRParen {
		for {
			arg, err := p.parseImplies()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

