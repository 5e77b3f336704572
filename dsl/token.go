package dsl

import (
	"fmt"
	"strings"

	"github.com/everydev1618/weave"
)

// TokenKind classifies one lexical element of the workflow syntax.
type TokenKind int

const (
	TokenStep TokenKind = iota
	TokenStepWithInstruction
	TokenSequential
	TokenParallel
	TokenConditional
	TokenCheckpoint
	TokenOpenBracket
	TokenCloseBracket
	TokenCondition
)

func (k TokenKind) String() string {
	switch k {
	case TokenStep:
		return "step-name"
	case TokenStepWithInstruction:
		return "step-with-instruction"
	case TokenSequential:
		return "sequential"
	case TokenParallel:
		return "parallel"
	case TokenConditional:
		return "conditional"
	case TokenCheckpoint:
		return "checkpoint"
	case TokenOpenBracket:
		return "open-bracket"
	case TokenCloseBracket:
		return "close-bracket"
	case TokenCondition:
		return "condition"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// Token is one lexical element. Pos is the rune offset of its first
// character in the source. Step tokens carry the split-out Name,
// Instruction and Capture parts; Value always holds the raw text.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   int

	Name        string
	Instruction string
	Capture     string
}

type tokenizer struct {
	src []rune
	pos int
}

// Tokenize scans workflow syntax into a flat token stream in a single
// left-to-right pass. Whitespace outside tokens is insignificant.
func Tokenize(text string) ([]Token, error) {
	t := &tokenizer{src: []rune(text)}
	var tokens []Token

	for {
		t.skipSpace()
		if t.eof() {
			return tokens, nil
		}
		start := t.pos

		switch {
		case t.lookingAt("->"):
			t.pos += 2
			tokens = append(tokens, Token{Kind: TokenSequential, Value: "->", Pos: start})
		case t.lookingAt("||"):
			t.pos += 2
			tokens = append(tokens, Token{Kind: TokenParallel, Value: "||", Pos: start})
		case t.lookingAt("~>"):
			t.pos += 2
			tokens = append(tokens, Token{Kind: TokenConditional, Value: "~>", Pos: start})
		case t.cur() == '[':
			t.pos++
			tokens = append(tokens, Token{Kind: TokenOpenBracket, Value: "[", Pos: start})
		case t.cur() == ']':
			t.pos++
			tokens = append(tokens, Token{Kind: TokenCloseBracket, Value: "]", Pos: start})
		case t.cur() == '(':
			tok, err := t.scanCondition()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case t.cur() == '@':
			tokens = append(tokens, t.scanCheckpoint())
		case t.cur() == '"':
			return nil, &weave.SyntaxError{
				Pos:  start,
				Msg:  "instruction string without a step name",
				Hint: `write it as name:"instruction"`,
			}
		default:
			tok, err := t.scanStep()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	}
}

func (t *tokenizer) eof() bool {
	return t.pos >= len(t.src)
}

func (t *tokenizer) cur() rune {
	if t.eof() {
		return 0
	}
	return t.src[t.pos]
}

func (t *tokenizer) lookingAt(s string) bool {
	for i, r := range s {
		if t.pos+i >= len(t.src) || t.src[t.pos+i] != r {
			return false
		}
	}
	return true
}

func (t *tokenizer) skipSpace() {
	for !t.eof() && isSpace(t.src[t.pos]) {
		t.pos++
	}
}

// scanCondition reads a parenthesized annotation like "(if failed)". The
// text is kept verbatim; the validator warns about forms it does not
// recognize, since conditions may be matched dynamically against output.
func (t *tokenizer) scanCondition() (Token, error) {
	start := t.pos
	t.pos++ // consume '('
	var inner []rune
	for {
		if t.eof() {
			return Token{}, &weave.SyntaxError{
				Pos:  start,
				Msg:  "unterminated condition",
				Hint: "close the annotation with ')'",
			}
		}
		if t.cur() == ')' {
			t.pos++
			break
		}
		inner = append(inner, t.cur())
		t.pos++
	}
	return Token{
		Kind:  TokenCondition,
		Value: strings.TrimSpace(string(inner)),
		Pos:   start,
	}, nil
}

// scanCheckpoint reads "@label": '@' plus contiguous non-whitespace,
// non-operator characters.
func (t *tokenizer) scanCheckpoint() Token {
	start := t.pos
	t.pos++ // consume '@'
	label := t.scanWord()
	return Token{
		Kind:  TokenCheckpoint,
		Value: "@" + label,
		Pos:   start,
		Name:  label,
	}
}

// scanStep reads a step reference in any of its forms: name,
// name:"instruction", name:"instruction":capture, name:capture. A quote
// immediately following the name also binds, with or without the colon.
func (t *tokenizer) scanStep() (Token, error) {
	start := t.pos
	tok := Token{Kind: TokenStep, Pos: start}
	tok.Name = t.scanWord()
	if tok.Name == "" {
		return Token{}, &weave.SyntaxError{
			Pos: start,
			Msg: fmt.Sprintf("unexpected character %q", t.cur()),
		}
	}

	if t.cur() == ':' || t.cur() == '"' {
		if t.cur() == ':' {
			t.pos++
		}
		if t.cur() == '"' {
			instruction, err := t.scanQuoted()
			if err != nil {
				return Token{}, err
			}
			tok.Kind = TokenStepWithInstruction
			tok.Instruction = instruction
			if t.cur() == ':' {
				t.pos++
				tok.Capture = t.scanWord()
			}
		} else {
			tok.Capture = t.scanWord()
		}
	}

	tok.Value = string(t.src[start:t.pos])
	return tok, nil
}

// scanQuoted reads a double-quoted instruction. Backslash escapes a quote.
func (t *tokenizer) scanQuoted() (string, error) {
	start := t.pos
	t.pos++ // consume opening quote
	var out []rune
	for {
		if t.eof() {
			return "", &weave.SyntaxError{
				Pos:  start,
				Msg:  "unterminated instruction string",
				Hint: `close the instruction with '"'`,
			}
		}
		r := t.cur()
		if r == '\\' && t.pos+1 < len(t.src) && t.src[t.pos+1] == '"' {
			out = append(out, '"')
			t.pos += 2
			continue
		}
		if r == '"' {
			t.pos++
			return string(out), nil
		}
		out = append(out, r)
		t.pos++
	}
}

// scanWord reads contiguous name characters, stopping at whitespace,
// delimiters and operator starts.
func (t *tokenizer) scanWord() string {
	start := t.pos
	for !t.eof() {
		r := t.cur()
		if isSpace(r) || r == '[' || r == ']' || r == '(' || r == ')' || r == '"' || r == ':' || r == '@' {
			break
		}
		if t.lookingAt("->") || t.lookingAt("||") || t.lookingAt("~>") {
			break
		}
		t.pos++
	}
	return string(t.src[start:t.pos])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
