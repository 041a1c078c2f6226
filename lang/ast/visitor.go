package ast

// A Visitor's Visit method is invoked for each node encountered by Walk. If
// the result visitor w is not nil, Walk visits each of the children of node
// with the visitor w, followed by a call of w.Visit(nil).
type Visitor interface {
	Visit(n Node) Visitor
}

func walkDecls(v Visitor, decls []Decl) {
	for _, d := range decls {
		d.Walk(v)
	}
}

func (n *Program) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	walkDecls(v, n.Decls)
	v.Visit(nil)
}

func (n *Function) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	walkDecls(v, n.Body)
	v.Visit(nil)
}

func (n *ClassDecl) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	if n.Superclass != nil {
		n.Superclass.Walk(v)
	}
	for _, m := range n.Methods {
		m.Walk(v)
	}
	v.Visit(nil)
}

func (n *FunDecl) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Fn.Walk(v)
	v.Visit(nil)
}

func (n *VarDecl) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	if n.Init != nil {
		n.Init.Walk(v)
	}
	v.Visit(nil)
}

func (n *StmtDecl) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Stmt.Walk(v)
	v.Visit(nil)
}

func (n *ExprStmt) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Expr.Walk(v)
	v.Visit(nil)
}

func (n *PrintStmt) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Expr.Walk(v)
	v.Visit(nil)
}

func (n *ReturnStmt) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	if n.Value != nil {
		n.Value.Walk(v)
	}
	v.Visit(nil)
}

func (n *BlockStmt) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	walkDecls(v, n.Decls)
	v.Visit(nil)
}

func (n *IfStmt) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Cond.Walk(v)
	n.Then.Walk(v)
	if n.Else != nil {
		n.Else.Walk(v)
	}
	v.Visit(nil)
}

func (n *WhileStmt) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Cond.Walk(v)
	n.Body.Walk(v)
	v.Visit(nil)
}

func (n *BinaryExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Left.Walk(v)
	n.Right.Walk(v)
	v.Visit(nil)
}

func (n *UnaryExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Right.Walk(v)
	v.Visit(nil)
}

func (n *LiteralExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	v.Visit(nil)
}

func (n *GroupingExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Expr.Walk(v)
	v.Visit(nil)
}

func (n *VariableExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	v.Visit(nil)
}

func (n *AssignExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Value.Walk(v)
	v.Visit(nil)
}

func (n *LogicalExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Left.Walk(v)
	n.Right.Walk(v)
	v.Visit(nil)
}

func (n *CallExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Callee.Walk(v)
	for _, arg := range n.Args {
		arg.Walk(v)
	}
	v.Visit(nil)
}

func (n *GetExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Object.Walk(v)
	v.Visit(nil)
}

func (n *SetExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	n.Object.Walk(v)
	n.Value.Walk(v)
	v.Visit(nil)
}

func (n *ThisExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	v.Visit(nil)
}

func (n *SuperExpr) Walk(v Visitor) {
	if v = v.Visit(n); v == nil {
		return
	}
	v.Visit(nil)
}
