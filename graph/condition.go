//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Edge expressions are small boolean formulas evaluated against the
// execution context:
//
//	outputs.is_qualified == true && outputs.score > 70
//	visits.intake < 3 || failed
//	!empty(outputs.emails)
//
// Paths resolve as: "outputs.<key>[...]" walks the output map,
// "visits.<node>" reads a visit counter, "failed" and "error" read the
// failure marker. Built-ins: len(x), empty(x), exists(x).

// evalExpression evaluates expr against ctx; the result must be boolean.
func evalExpression(expr string, ctx *ExecContext) (bool, error) {
	toks, err := scanTokens(expr)
	if err != nil {
		return false, fmt.Errorf("expression %q: %w", expr, err)
	}
	ev := &exprEval{toks: toks, ctx: ctx}
	v, err := ev.or()
	if err != nil {
		return false, fmt.Errorf("expression %q: %w", expr, err)
	}
	if ev.peek().kind != tokEOF {
		return false, fmt.Errorf("expression %q: trailing input at %q", expr, ev.peek().text)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q: result is %T, not bool", expr, v)
	}
	return b, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct // one of ( ) , . == != < <= > >= && || !
)

type exprTok struct {
	kind tokKind
	text string
}

func scanTokens(src string) ([]exprTok, error) {
	var toks []exprTok
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.ContainsRune("().,", rune(c)):
			toks = append(toks, exprTok{tokPunct, string(c)})
			i++
		case c == '&' || c == '|':
			if i+1 >= len(src) || src[i+1] != c {
				return nil, fmt.Errorf("unexpected %q at %d", c, i)
			}
			toks = append(toks, exprTok{tokPunct, src[i : i+2]})
			i += 2
		case c == '=' || c == '!' || c == '<' || c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, exprTok{tokPunct, src[i : i+2]})
				i += 2
			} else if c == '=' {
				return nil, fmt.Errorf("single '=' at %d, use '=='", i)
			} else {
				toks = append(toks, exprTok{tokPunct, string(c)})
				i++
			}
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			toks = append(toks, exprTok{tokString, src[i+1 : j]})
			i = j + 1
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, exprTok{tokNumber, src[i:j]})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(src) && (isIdentByte(src[j]) || src[j] >= '0' && src[j] <= '9') {
				j++
			}
			toks = append(toks, exprTok{tokIdent, src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	return append(toks, exprTok{kind: tokEOF}), nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '-'
}

type exprEval struct {
	toks []exprTok
	pos  int
	ctx  *ExecContext
}

func (e *exprEval) peek() exprTok { return e.toks[e.pos] }

func (e *exprEval) next() exprTok {
	t := e.toks[e.pos]
	if t.kind != tokEOF {
		e.pos++
	}
	return t
}

func (e *exprEval) punct(text string) bool {
	if t := e.peek(); t.kind == tokPunct && t.text == text {
		e.pos++
		return true
	}
	return false
}

func (e *exprEval) or() (any, error) {
	left, err := e.and()
	if err != nil {
		return nil, err
	}
	for e.punct("||") {
		right, err := e.and()
		if err != nil {
			return nil, err
		}
		lb, rb, err := bothBool(left, right, "||")
		if err != nil {
			return nil, err
		}
		left = lb || rb
	}
	return left, nil
}

func (e *exprEval) and() (any, error) {
	left, err := e.unary()
	if err != nil {
		return nil, err
	}
	for e.punct("&&") {
		right, err := e.unary()
		if err != nil {
			return nil, err
		}
		lb, rb, err := bothBool(left, right, "&&")
		if err != nil {
			return nil, err
		}
		left = lb && rb
	}
	return left, nil
}

func (e *exprEval) unary() (any, error) {
	if e.punct("!") {
		v, err := e.unary()
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("! requires bool operand, got %T", v)
		}
		return !b, nil
	}
	return e.comparison()
}

func (e *exprEval) comparison() (any, error) {
	left, err := e.operand()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if e.punct(op) {
			right, err := e.operand()
			if err != nil {
				return nil, err
			}
			return compareValues(left, right, op)
		}
	}
	return left, nil
}

func (e *exprEval) operand() (any, error) {
	t := e.next()
	switch t.kind {
	case tokNumber:
		return strconv.ParseFloat(t.text, 64)
	case tokString:
		return t.text, nil
	case tokPunct:
		if t.text == "(" {
			v, err := e.or()
			if err != nil {
				return nil, err
			}
			if !e.punct(")") {
				return nil, fmt.Errorf("missing ')'")
			}
			return v, nil
		}
		return nil, fmt.Errorf("unexpected %q", t.text)
	case tokIdent:
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil", "null":
			return nil, nil
		}
		if e.punct("(") {
			return e.callBuiltin(t.text)
		}
		return e.resolve(t.text)
	default:
		return nil, fmt.Errorf("unexpected end of expression")
	}
}

func (e *exprEval) callBuiltin(name string) (any, error) {
	var args []any
	if !e.punct(")") {
		for {
			arg, err := e.or()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if e.punct(")") {
				break
			}
			if !e.punct(",") {
				return nil, fmt.Errorf("expected ',' or ')' in %s()", name)
			}
		}
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s() takes exactly 1 argument", name)
	}
	switch name {
	case "len":
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len() of %T", v)
		}
	case "empty":
		switch v := args[0].(type) {
		case nil:
			return true, nil
		case string:
			return v == "", nil
		case []any:
			return len(v) == 0, nil
		case map[string]any:
			return len(v) == 0, nil
		default:
			return false, nil
		}
	case "exists":
		return args[0] != nil, nil
	default:
		return nil, fmt.Errorf("unknown function %s()", name)
	}
}

// resolve walks a dotted path rooted at outputs/visits/failed/error.
func (e *exprEval) resolve(root string) (any, error) {
	var path []string
	for e.punct(".") {
		t := e.next()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("expected identifier after '.'")
		}
		path = append(path, t.text)
	}
	switch root {
	case "failed":
		return e.ctx.Failed, nil
	case "error":
		return e.ctx.FailureMessage, nil
	case "visits":
		if len(path) != 1 {
			return nil, fmt.Errorf("visits path requires a node id")
		}
		return float64(e.ctx.Visits[path[0]]), nil
	case "outputs":
		if len(path) == 0 {
			return nil, fmt.Errorf("outputs path requires a key")
		}
		var current any = e.ctx.Outputs
		for _, seg := range path {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("cannot access %q on %T", seg, current)
			}
			current = m[seg]
			if current == nil {
				return nil, nil
			}
		}
		return normalizeNumber(current), nil
	default:
		return nil, fmt.Errorf("unknown root %q (want outputs, visits, failed or error)", root)
	}
}

func bothBool(left, right any, op string) (bool, bool, error) {
	lb, lok := left.(bool)
	rb, rok := right.(bool)
	if !lok || !rok {
		return false, false, fmt.Errorf("%s requires bool operands", op)
	}
	return lb, rb, nil
}

func compareValues(left, right any, op string) (bool, error) {
	left, right = normalizeNumber(left), normalizeNumber(right)
	if op == "==" || op == "!=" {
		eq := equalValues(left, right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}
	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return false, fmt.Errorf("cannot compare %T and %T with %s", left, right, op)
}

// equalValues compares two already-normalized values. Composite values
// (slices, maps) fall back to deep equality so context outputs holding
// them never crash the evaluator.
func equalValues(left, right any) bool {
	switch left.(type) {
	case nil, bool, float64, string:
		switch right.(type) {
		case nil, bool, float64, string:
			return left == right
		}
	}
	return reflect.DeepEqual(left, right)
}

// normalizeNumber widens integer values so comparisons against numeric
// literals (always float64) behave as expected.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
