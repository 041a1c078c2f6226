package ast

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mna/blox/lang/token"
)

// ToSexp renders the program as one s-expression per top-level declaration,
// each on its own line.
func ToSexp(prog *Program) string {
	var sb strings.Builder
	for _, d := range prog.Decls {
		sexpDecl(&sb, d)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func sexpDecl(sb *strings.Builder, d Decl) {
	switch d := d.(type) {
	case *ClassDecl:
		sb.WriteString("(class ")
		sb.WriteString(d.Name)
		if d.Superclass != nil {
			sb.WriteString(" < ")
			sb.WriteString(d.Superclass.Name)
		}
		for _, m := range d.Methods {
			sb.WriteByte(' ')
			sexpFunction(sb, m)
		}
		sb.WriteByte(')')
	case *FunDecl:
		sexpFunction(sb, d.Fn)
	case *VarDecl:
		sb.WriteString("(var ")
		sb.WriteString(d.Name)
		if d.Init != nil {
			sb.WriteByte(' ')
			sexpExpr(sb, d.Init)
		}
		sb.WriteByte(')')
	case *StmtDecl:
		sexpStmt(sb, d.Stmt)
	}
}

func sexpFunction(sb *strings.Builder, fn *Function) {
	sb.WriteString("(fun ")
	sb.WriteString(fn.Name)
	sb.WriteString(" (")
	for i, p := range fn.Params {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	for _, d := range fn.Body {
		sb.WriteByte(' ')
		sexpDecl(sb, d)
	}
	sb.WriteByte(')')
}

func sexpStmt(sb *strings.Builder, s Stmt) {
	switch s := s.(type) {
	case *ExprStmt:
		sexpExpr(sb, s.Expr)
	case *PrintStmt:
		sb.WriteString("(print ")
		sexpExpr(sb, s.Expr)
		sb.WriteByte(')')
	case *ReturnStmt:
		sb.WriteString("(return")
		if s.Value != nil {
			sb.WriteByte(' ')
			sexpExpr(sb, s.Value)
		}
		sb.WriteByte(')')
	case *BlockStmt:
		sb.WriteString("(block")
		for _, d := range s.Decls {
			sb.WriteByte(' ')
			sexpDecl(sb, d)
		}
		sb.WriteByte(')')
	case *IfStmt:
		sb.WriteString("(if ")
		sexpExpr(sb, s.Cond)
		sb.WriteByte(' ')
		sexpStmt(sb, s.Then)
		if s.Else != nil {
			sb.WriteByte(' ')
			sexpStmt(sb, s.Else)
		}
		sb.WriteByte(')')
	case *WhileStmt:
		sb.WriteString("(while ")
		sexpExpr(sb, s.Cond)
		sb.WriteByte(' ')
		sexpStmt(sb, s.Body)
		sb.WriteByte(')')
	}
}

func sexpExpr(sb *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *BinaryExpr:
		sb.WriteByte('(')
		sb.WriteString(e.Op.String())
		sb.WriteByte(' ')
		sexpExpr(sb, e.Left)
		sb.WriteByte(' ')
		sexpExpr(sb, e.Right)
		sb.WriteByte(')')
	case *UnaryExpr:
		sb.WriteByte('(')
		sb.WriteString(e.Op.String())
		sb.WriteByte(' ')
		sexpExpr(sb, e.Right)
		sb.WriteByte(')')
	case *LiteralExpr:
		sexpLiteral(sb, e.Value)
	case *GroupingExpr:
		sb.WriteString("(group ")
		sexpExpr(sb, e.Expr)
		sb.WriteByte(')')
	case *VariableExpr:
		sb.WriteString(e.Name)
	case *AssignExpr:
		sb.WriteString("(= ")
		sb.WriteString(e.Name)
		sb.WriteByte(' ')
		sexpExpr(sb, e.Value)
		sb.WriteByte(')')
	case *LogicalExpr:
		sb.WriteByte('(')
		sb.WriteString(e.Op.String())
		sb.WriteByte(' ')
		sexpExpr(sb, e.Left)
		sb.WriteByte(' ')
		sexpExpr(sb, e.Right)
		sb.WriteByte(')')
	case *CallExpr:
		sb.WriteString("(call ")
		sexpExpr(sb, e.Callee)
		for _, arg := range e.Args {
			sb.WriteByte(' ')
			sexpExpr(sb, arg)
		}
		sb.WriteByte(')')
	case *GetExpr:
		sb.WriteString("(. ")
		sexpExpr(sb, e.Object)
		sb.WriteByte(' ')
		sb.WriteString(e.Name)
		sb.WriteByte(')')
	case *SetExpr:
		sb.WriteString("(.= ")
		sexpExpr(sb, e.Object)
		sb.WriteByte(' ')
		sb.WriteString(e.Name)
		sb.WriteByte(' ')
		sexpExpr(sb, e.Value)
		sb.WriteByte(')')
	case *ThisExpr:
		sb.WriteString("this")
	case *SuperExpr:
		sb.WriteString("(super ")
		sb.WriteString(e.Method)
		sb.WriteByte(')')
	}
}

func sexpLiteral(sb *strings.Builder, v interface{}) {
	switch v := v.(type) {
	case nil:
		sb.WriteString("nil")
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		sb.WriteByte('"')
		sb.WriteString(v)
		sb.WriteByte('"')
	}
}

// ToJSON renders the program as indented JSON. Node types are tagged so the
// output is unambiguous.
func ToJSON(prog *Program) (string, error) {
	decls := make([]interface{}, len(prog.Decls))
	for i, d := range prog.Decls {
		decls[i] = jsonDecl(d)
	}
	b, err := json.MarshalIndent(map[string]interface{}{"declarations": decls}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func jsonSpan(sp token.Span) map[string]interface{} {
	return map[string]interface{}{"offset": sp.Off, "len": sp.Len}
}

func jsonDecl(d Decl) map[string]interface{} {
	switch d := d.(type) {
	case *ClassDecl:
		methods := make([]interface{}, len(d.Methods))
		for i, m := range d.Methods {
			methods[i] = jsonFunction(m)
		}
		m := map[string]interface{}{
			"type": "class", "name": d.Name, "methods": methods,
			"span": jsonSpan(d.Span()),
		}
		if d.Superclass != nil {
			m["superclass"] = d.Superclass.Name
		}
		return m
	case *FunDecl:
		return jsonFunction(d.Fn)
	case *VarDecl:
		m := map[string]interface{}{
			"type": "var", "name": d.Name, "span": jsonSpan(d.Span()),
		}
		if d.Init != nil {
			m["initializer"] = jsonExpr(d.Init)
		}
		return m
	case *StmtDecl:
		return jsonStmt(d.Stmt)
	}
	return nil
}

func jsonFunction(fn *Function) map[string]interface{} {
	body := make([]interface{}, len(fn.Body))
	for i, d := range fn.Body {
		body[i] = jsonDecl(d)
	}
	params := fn.Params
	if params == nil {
		params = []string{}
	}
	return map[string]interface{}{
		"type": "fun", "name": fn.Name, "params": params, "body": body,
		"span": jsonSpan(fn.Span()),
	}
}

func jsonStmt(s Stmt) map[string]interface{} {
	switch s := s.(type) {
	case *ExprStmt:
		return map[string]interface{}{"type": "expression", "expression": jsonExpr(s.Expr)}
	case *PrintStmt:
		return map[string]interface{}{"type": "print", "expression": jsonExpr(s.Expr)}
	case *ReturnStmt:
		m := map[string]interface{}{"type": "return"}
		if s.Value != nil {
			m["value"] = jsonExpr(s.Value)
		}
		return m
	case *BlockStmt:
		decls := make([]interface{}, len(s.Decls))
		for i, d := range s.Decls {
			decls[i] = jsonDecl(d)
		}
		return map[string]interface{}{"type": "block", "declarations": decls}
	case *IfStmt:
		m := map[string]interface{}{
			"type": "if", "condition": jsonExpr(s.Cond), "then": jsonStmt(s.Then),
		}
		if s.Else != nil {
			m["else"] = jsonStmt(s.Else)
		}
		return m
	case *WhileStmt:
		return map[string]interface{}{
			"type": "while", "condition": jsonExpr(s.Cond), "body": jsonStmt(s.Body),
		}
	}
	return nil
}

func jsonExpr(e Expr) map[string]interface{} {
	m := map[string]interface{}{"id": e.ID(), "span": jsonSpan(e.Span())}
	switch e := e.(type) {
	case *BinaryExpr:
		m["type"] = "binary"
		m["operator"] = e.Op.String()
		m["left"] = jsonExpr(e.Left)
		m["right"] = jsonExpr(e.Right)
	case *UnaryExpr:
		m["type"] = "unary"
		m["operator"] = e.Op.String()
		m["operand"] = jsonExpr(e.Right)
	case *LiteralExpr:
		m["type"] = "literal"
		m["value"] = e.Value
	case *GroupingExpr:
		m["type"] = "grouping"
		m["expression"] = jsonExpr(e.Expr)
	case *VariableExpr:
		m["type"] = "variable"
		m["name"] = e.Name
	case *AssignExpr:
		m["type"] = "assign"
		m["name"] = e.Name
		m["value"] = jsonExpr(e.Value)
	case *LogicalExpr:
		m["type"] = "logical"
		m["operator"] = e.Op.String()
		m["left"] = jsonExpr(e.Left)
		m["right"] = jsonExpr(e.Right)
	case *CallExpr:
		args := make([]interface{}, len(e.Args))
		for i, a := range e.Args {
			args[i] = jsonExpr(a)
		}
		m["type"] = "call"
		m["callee"] = jsonExpr(e.Callee)
		m["arguments"] = args
	case *GetExpr:
		m["type"] = "get"
		m["object"] = jsonExpr(e.Object)
		m["name"] = e.Name
	case *SetExpr:
		m["type"] = "set"
		m["object"] = jsonExpr(e.Object)
		m["name"] = e.Name
		m["value"] = jsonExpr(e.Value)
	case *ThisExpr:
		m["type"] = "this"
	case *SuperExpr:
		m["type"] = "super"
		m["method"] = e.Method
	}
	return m
}
