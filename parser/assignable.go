package parser

import (
	pc "github.com/shibukawa/parsercombinator"
	tok "github.com/shibukawa/pyplusplus/tokenizer"
)

// entity is the token type the target grammar runs on.
// Input entities carry only a lexer token; the element parsers below replace
// the tokens they match with a single entity describing the element.
type entity struct {
	token   tok.Token
	element *element
}

type elementKind string

const (
	elementName      elementKind = "name"
	elementConstant  elementKind = "constant"
	elementLiteral   elementKind = "literal"
	elementGroup     elementKind = "group"
	elementAttribute elementKind = "attribute"
	elementSubscript elementKind = "subscript"
	elementCall      elementKind = "call"
)

type element struct {
	kind      elementKind
	span      tok.Span
	attr      string
	key       tok.Span
	inlineKey bool
}

var (
	dot        = primitive("dot", func(t tok.Token) bool { return t.IsOp(".") })
	identifier = primitive("identifier", func(t tok.Token) bool { return t.Type == tok.NAME && !tok.IsKeyword(t.Value) })
	constant   = primitive("constant", func(t tok.Token) bool {
		return (t.Type == tok.NAME && (t.Value == "None" || t.Value == "True" || t.Value == "False")) || t.IsOp("...")
	})
	str       = primitive("string", func(t tok.Token) bool { return t.Type == tok.STRING })
	anyLit    = primitive("literal", func(t tok.Token) bool { return t.Type == tok.NUMBER || t.Type == tok.STRING })
	parens    = balanced("(", ")")
	brackets  = balanced("[", "]")
	braces    = balanced("{", "}")
	atomName  = elementOf(elementName, identifier, nil)
	atomConst = elementOf(elementConstant, constant, nil)
	atomLit   = elementOf(elementLiteral, pc.Seq(anyLit, pc.ZeroOrMore("string literal", str)), nil)
	atomGroup = elementOf(elementGroup, pc.Or(parens, brackets, braces), nil)

	attributeTrailer = elementOf(elementAttribute, pc.Seq(dot, identifier), func(el *element, matched []pc.Token[entity]) {
		el.attr = matched[1].Val.token.Value
	})
	subscriptTrailer = elementOf(elementSubscript, brackets, func(el *element, matched []pc.Token[entity]) {
		open := matched[0].Val.token
		closing := matched[len(matched)-1].Val.token
		el.key = tok.Span{Start: open.End, End: closing.Position}
		el.inlineKey = needsInlineKey(matched[1 : len(matched)-1])
	})
	callTrailer = elementOf(elementCall, parens, nil)

	atom    = pc.Or(atomName, atomConst, atomLit, atomGroup)
	trailer = pc.Or(attributeTrailer, subscriptTrailer, callTrailer)
	primary = pc.Seq(atom, pc.ZeroOrMore("trailer", trailer))
)

func primitive(typeName string, match func(tok.Token) bool) pc.Parser[entity] {
	return func(pctx *pc.ParseContext[entity], tokens []pc.Token[entity]) (int, []pc.Token[entity], error) {
		if len(tokens) > 0 && tokens[0].Val.element == nil && match(tokens[0].Val.token) {
			return 1, tokens[:1], nil
		}

		return 0, nil, pc.ErrNotMatch
	}
}

// balanced matches a bracketed token run including nested brackets
func balanced(open, closing string) pc.Parser[entity] {
	return func(pctx *pc.ParseContext[entity], tokens []pc.Token[entity]) (int, []pc.Token[entity], error) {
		if len(tokens) == 0 || !tokens[0].Val.token.IsOp(open) {
			return 0, nil, pc.ErrNotMatch
		}

		depth := 0

		for i, t := range tokens {
			if t.Val.token.Type != tok.OP {
				continue
			}

			switch t.Val.token.Value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			}

			if depth == 0 {
				if !t.Val.token.IsOp(closing) {
					return 0, nil, pc.ErrNotMatch
				}

				return i + 1, tokens[:i+1], nil
			}
		}

		return 0, nil, pc.ErrNotMatch
	}
}

// elementOf collapses the tokens matched by p into one entity of the given kind
func elementOf(kind elementKind, p pc.Parser[entity], build func(el *element, matched []pc.Token[entity])) pc.Parser[entity] {
	return pc.Trace(string(kind), func(pctx *pc.ParseContext[entity], tokens []pc.Token[entity]) (int, []pc.Token[entity], error) {
		consumed, _, err := p(pctx, tokens)
		if err != nil {
			return 0, nil, err
		}

		matched := tokens[:consumed]
		first := matched[0].Val.token
		last := matched[consumed-1].Val.token

		el := &element{
			kind: kind,
			span: tok.Span{Start: first.Position, End: last.End},
		}
		if build != nil {
			build(el, matched)
		}

		raw := make([]byte, 0, 32)
		for _, m := range matched {
			raw = append(raw, m.Raw...)
		}

		return consumed, []pc.Token[entity]{
			{
				Type: string(kind),
				Pos:  matched[0].Pos,
				Val:  entity{token: first, element: el},
				Raw:  string(raw),
			},
		}, nil
	})
}

// needsInlineKey reports whether a subscript key is a slice or contains a
// starred item. Such keys are not expressions and stay inside the brackets.
func needsInlineKey(inner []pc.Token[entity]) bool {
	depth := 0
	itemStart := true

	for _, t := range inner {
		v := t.Val.token
		if v.Type == tok.OP {
			switch v.Value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ":":
				if depth == 0 {
					return true
				}
			case "*":
				if depth == 0 && itemStart {
					return true
				}
			}
		}

		itemStart = depth == 0 && v.IsOp(",")
	}

	return false
}

func toEntities(tokens []tok.Token) []pc.Token[entity] {
	results := make([]pc.Token[entity], len(tokens))

	for i, token := range tokens {
		results[i] = pc.Token[entity]{
			Type: "raw",
			Pos: &pc.Pos{
				Line:  token.Position.Line,
				Col:   token.Position.Column,
				Index: token.Position.Offset,
			},
			Val: entity{token: token},
			Raw: token.Value,
		}
	}

	return results
}

// parseTarget parses the significant tokens in front of a postfix operator.
// It returns the elements of the primary expression and whether they cover
// all of the tokens.
func parseTarget(tokens []tok.Token) ([]*element, bool) {
	pctx := pc.NewParseContext[entity]()

	consumed, parsed, err := primary(pctx, toEntities(tokens))
	if err != nil {
		return nil, false
	}

	elements := make([]*element, 0, len(parsed))
	for _, p := range parsed {
		if p.Val.element != nil {
			elements = append(elements, p.Val.element)
		}
	}

	return elements, consumed == len(tokens)
}
