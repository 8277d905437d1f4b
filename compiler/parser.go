package compiler

import (
	"sort"
	"strconv"

	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// Parser: precedence-climbing parser for tile rows
// ---------------------------------------------------------------------------

// Parser turns one rule row into an expression tree. It never fails:
// problems become diagnostics and Error nodes.
type Parser struct {
	toks    []Token
	pos     int
	cur     Token
	catalog *Catalog
	ids     *NodeIDs
	diags   diagSink
}

// NewParser creates a parser for input. Node ids are drawn from ids so
// that they stay unique across every row of a compilation.
func NewParser(input string, catalog *Catalog, ids *NodeIDs, diags *Diagnostics, rule string) *Parser {
	p := &Parser{
		toks:    NewLexer(input).Tokenize(),
		catalog: catalog,
		ids:     ids,
		diags:   diagSink{list: diags, rule: rule},
	}
	p.cur = p.toks[0]
	return p
}

// ParseRow parses a single row with a fresh id counter.
func ParseRow(input string, catalog *Catalog) (Expr, Diagnostics) {
	var diags Diagnostics
	e := NewParser(input, catalog, &NodeIDs{}, &diags, "").Parse()
	return e, diags
}

func (p *Parser) nextToken() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	p.cur = p.toks[p.pos]
}

func (p *Parser) peek() Token {
	if p.pos < len(p.toks)-1 {
		return p.toks[p.pos+1]
	}
	return p.cur
}

func (p *Parser) base(pos Position) exprBase {
	return exprBase{NodeID: p.ids.Next(), PosVal: pos}
}

func (p *Parser) errorNode(pos Position, format string, args ...any) *Error {
	n := &Error{exprBase: p.base(pos)}
	p.diags.errorf(ParseError, n, format, args...)
	n.Message = (*p.diags.list)[len(*p.diags.list)-1].Message
	return n
}

// Parse parses the whole row. An empty row yields an Empty node.
func (p *Parser) Parse() Expr {
	if p.cur.Type == TokenEOF {
		return &Empty{exprBase: p.base(p.cur.Pos)}
	}
	e := p.parseExpr(precAssign)
	for p.cur.Type != TokenEOF {
		p.diags.errorf(ParseError, e, "unexpected %s", p.cur)
		p.nextToken()
	}
	return e
}

// parseExpr parses operators binding at least as tightly as minPrec.
func (p *Parser) parseExpr(minPrec int) Expr {
	left := p.parseUnary()

	for {
		if p.cur.Type == TokenAssign {
			if minPrec > precAssign {
				return left
			}
			pos := p.cur.Pos
			switch left.(type) {
			case *Variable, *FieldAccess:
			default:
				p.nextToken()
				p.parseExpr(precAssign)
				return p.errorNode(pos, "cannot assign to this expression")
			}
			p.nextToken()
			value := p.parseExpr(precAssign) // right-associative
			left = &Assignment{exprBase: p.base(pos), Target: left, Value: value}
			continue
		}

		info, ok := binaryOps[p.cur.Type]
		if !ok || info.power < minPrec {
			return left
		}
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseExpr(info.power + 1)
		left = &BinaryOp{exprBase: p.base(pos), Op: info.op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() Expr {
	switch p.cur.Type {
	case TokenBang:
		pos := p.cur.Pos
		p.nextToken()
		return &UnaryOp{exprBase: p.base(pos), Op: vm.OpNot, Operand: p.parseUnary()}
	case TokenMinus:
		pos := p.cur.Pos
		p.nextToken()
		return &UnaryOp{exprBase: p.base(pos), Op: vm.OpNeg, Operand: p.parseUnary()}
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parsePostfix(e Expr) Expr {
	for p.cur.Type == TokenDot && p.peek().Type == TokenWord {
		pos := p.cur.Pos
		p.nextToken()
		e = &FieldAccess{exprBase: p.base(pos), Object: e, Field: p.cur.Literal}
		p.nextToken()
	}
	return e
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur
	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		n, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return p.errorNode(tok.Pos, "invalid number %q", tok.Literal)
		}
		return &Literal{exprBase: p.base(tok.Pos), Value: vm.Number(n)}

	case TokenString:
		p.nextToken()
		return &Literal{exprBase: p.base(tok.Pos), Value: vm.String(tok.Literal)}

	case TokenTrue, TokenFalse:
		p.nextToken()
		return &Literal{exprBase: p.base(tok.Pos), Value: vm.Bool(tok.Type == TokenTrue)}

	case TokenNil:
		p.nextToken()
		return &Literal{exprBase: p.base(tok.Pos), Value: vm.Nil}

	case TokenVariable:
		p.nextToken()
		return &Variable{exprBase: p.base(tok.Pos), Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		e := p.parseExpr(precAssign)
		if p.cur.Type != TokenRParen {
			return p.errorNode(p.cur.Pos, "expected ')', got %s", p.cur)
		}
		p.nextToken()
		return e

	case TokenWord:
		return p.parseTile()

	case TokenEOF:
		return p.errorNode(tok.Pos, "unexpected end of row")

	case TokenError:
		p.nextToken()
		return p.errorNode(tok.Pos, "%s", tok.Literal)
	}

	p.nextToken()
	return p.errorNode(tok.Pos, "unexpected %s", tok)
}

func (p *Parser) parseTile() Expr {
	tok := p.cur
	p.nextToken()

	tile, ok := p.catalog.Lookup(tok.Literal)
	if !ok {
		n := &Error{exprBase: p.base(tok.Pos), Message: "unknown tile " + tok.Literal}
		p.diags.errorf(MissingTile, n, "unknown tile %q", tok.Literal)
		return n
	}

	switch tile.Kind {
	case TileSensor, TileActuator:
		return p.parseCall(tile, tok.Pos)
	case TileParameter:
		return &Parameter{exprBase: p.base(tok.Pos), Tile: tile, Value: p.parseUnary()}
	}
	return &Modifier{exprBase: p.base(tok.Pos), Tile: tile, Count: 1}
}

// ---------------------------------------------------------------------------
// Call sites
// ---------------------------------------------------------------------------

// parseCall consumes the arguments that follow a sensor or actuator word,
// binding each to a slot of the tile's flattened call spec.
func (p *Parser) parseCall(tile *Tile, pos Position) Expr {
	b := newCallBuilder(tile)
	id := p.ids.Next()

loop:
	for {
		switch p.cur.Type {
		case TokenWord:
			arg, known := p.catalog.Lookup(p.cur.Literal)
			switch {
			case known && arg.Kind == TileModifier:
				slot := b.find(ArgModifier, arg.ID)
				if slot < 0 {
					break loop
				}
				modPos := p.cur.Pos
				p.nextToken()
				if m, ok := b.args[slot].(*Modifier); ok {
					m.Count++
					continue
				}
				b.fill(slot, &Modifier{exprBase: p.base(modPos), Tile: arg, Count: 1})

			case known && arg.Kind == TileParameter:
				slot := b.find(ArgParameter, arg.ID)
				if slot < 0 {
					break loop
				}
				paramPos := p.cur.Pos
				p.nextToken()
				b.fill(slot, &Parameter{exprBase: p.base(paramPos), Tile: arg, Value: p.parseUnary()})

			case !known || arg.Kind == TileSensor:
				slot := b.anonymous()
				if slot < 0 {
					break loop
				}
				b.fill(slot, p.parseUnary())

			default:
				break loop
			}

		case TokenNumber, TokenString, TokenVariable, TokenTrue, TokenFalse, TokenNil, TokenLParen, TokenBang, TokenMinus:
			slot := b.anonymous()
			if slot < 0 {
				break loop
			}
			b.fill(slot, p.parseUnary())

		default:
			break loop
		}
	}

	args := b.slotArgs()
	base := exprBase{NodeID: id, PosVal: pos}
	if tile.Kind == TileSensor {
		return &Sensor{exprBase: base, Tile: tile, Args: args}
	}
	return &Actuator{exprBase: base, Tile: tile, Args: args}
}

// callBuilder tracks which slots of a call site are filled.
type callBuilder struct {
	spec FlatSpec
	args map[int]Expr
}

func newCallBuilder(tile *Tile) *callBuilder {
	return &callBuilder{spec: tile.Spec, args: make(map[int]Expr)}
}

func (b *callBuilder) fill(slot int, e Expr) {
	b.args[slot] = e
}

// find returns the first usable slot for a parameter or modifier tile.
// A modifier slot that is already filled stays usable so repeats count.
func (b *callBuilder) find(kind ArgKind, tile string) int {
	for i := range b.spec.Slots {
		s := &b.spec.Slots[i]
		if s.Arg.Kind != kind || s.Arg.Tile != tile {
			continue
		}
		if _, filled := b.args[s.SlotID]; filled && kind == ArgModifier {
			return s.SlotID
		}
		if b.available(s) {
			return s.SlotID
		}
	}
	return -1
}

// anonymous returns the first usable anonymous slot.
func (b *callBuilder) anonymous() int {
	for i := range b.spec.Slots {
		s := &b.spec.Slots[i]
		if s.Arg.Kind == ArgAnonymous && b.available(s) {
			return s.SlotID
		}
	}
	return -1
}

func (b *callBuilder) available(s *ArgSlot) bool {
	if _, filled := b.args[s.SlotID]; filled {
		return false
	}
	// Another option of the same choice already won.
	if s.ChoiceGroup != 0 {
		for id := range b.args {
			o := &b.spec.Slots[id]
			if o.ChoiceGroup == s.ChoiceGroup && o.Option != s.Option {
				return false
			}
		}
	}
	if s.Condition != nil {
		if b.groupFilled(b.spec.Choices[s.Condition.Choice]) == s.Condition.Else {
			return false
		}
	}
	return true
}

func (b *callBuilder) groupFilled(g int) bool {
	if g == 0 {
		return false
	}
	for id := range b.args {
		if b.spec.Slots[id].InGroup(g) {
			return true
		}
	}
	return false
}

func (b *callBuilder) slotArgs() []SlotArg {
	out := make([]SlotArg, 0, len(b.args))
	for slot, e := range b.args {
		out = append(out, SlotArg{Slot: slot, Value: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
