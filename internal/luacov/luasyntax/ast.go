package luasyntax

// Node is implemented by every AST node. Span returns the node's
// [start,end) byte offsets within the source buffer that produced it,
// which the analyzer and instrumenter both rely on to map AST
// structure back onto lines.
type Node interface {
	Span() (start, end int)
}

type span struct {
	Start, End Position
}

func (s span) Span() (int, int) { return s.Start.Offset, s.End.Offset }

// File is the root of a parsed chunk.
type File struct {
	span
	Name string
	Body *Block
}

// Block is a sequence of statements, optionally ending in a return.
type Block struct {
	span
	Stmts []Stmt
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

func (span) stmtNode() {}
func (span) exprNode() {}

// LocalStmt: local a, b = 1, 2
type LocalStmt struct {
	span
	Names   []*Ident
	Attribs []string // <const>/<close> attributes, parallel to Names; "" if none
	Values  []Expr
}

// AssignStmt: a, b = 1, 2
type AssignStmt struct {
	span
	Targets []Expr
	Values  []Expr
}

// CallStmt wraps a call expression used as a statement.
type CallStmt struct {
	span
	Call Expr
}

// DoStmt: do ... end
type DoStmt struct {
	span
	Body *Block
	// KeywordLines holds the 1-based source lines of the "do" and
	// matching "end" keywords, which the instrumenter needs to locate
	// block-boundary lines independent of statement spans.
	DoLine, EndLine int
}

// WhileStmt: while cond do ... end
type WhileStmt struct {
	span
	Cond              Expr
	Body              *Block
	WhileLine, DoLine int
	EndLine           int
}

// RepeatStmt: repeat ... until cond
type RepeatStmt struct {
	span
	Body                  *Block
	Cond                  Expr
	RepeatLine, UntilLine int
}

// IfClause is one if/elseif/else arm.
type IfClause struct {
	Cond        Expr // nil for the trailing else
	Body        *Block
	KeywordLine int // line of "if"/"elseif"/"else"
	ThenLine    int // line of "then"; 0 for else
}

// IfStmt: if ... then ... elseif ... else ... end
type IfStmt struct {
	span
	Clauses []IfClause
	EndLine int
}

// NumForStmt: for i = start, stop[, step] do ... end
type NumForStmt struct {
	span
	Name              *Ident
	Start, Stop, Step Expr
	Body              *Block
	ForLine, DoLine   int
	EndLine           int
}

// GenForStmt: for a, b in explist do ... end
type GenForStmt struct {
	span
	Names           []*Ident
	Exprs           []Expr
	Body            *Block
	ForLine, DoLine int
	EndLine         int
}

// FuncKind classifies how a function was declared; the static
// analyzer surfaces this classification per function.
type FuncKind int

const (
	FuncGlobal FuncKind = iota
	FuncLocal
	FuncMethod
	FuncAnonymous
)

// FuncStmt: function name(...) ... end / local function name(...) ... end
// / function t.a.b:method(...) ... end
type FuncStmt struct {
	span
	Kind      FuncKind
	NameParts []string // dotted/colon path components, e.g. ["t","a","b"]
	IsMethod  bool     // true if declared with ':'
	Func      *FuncExpr
}

// FuncExpr is a function literal: function(params) ... end, used both
// for anonymous functions and as the body of FuncStmt.
type FuncExpr struct {
	span
	Params       []*Ident
	IsVararg     bool
	Body         *Block
	FunctionLine int
	EndLine      int
}

// ReturnStmt: return [explist]
type ReturnStmt struct {
	span
	Values []Expr
}

// BreakStmt: break
type BreakStmt struct{ span }

// GotoStmt: goto label
type GotoStmt struct {
	span
	Label string
}

// LabelStmt: ::label::
type LabelStmt struct {
	span
	Name string
}

// --- Expressions ---

type Ident struct {
	span
	Name string
}

type NilLit struct{ span }
type TrueLit struct{ span }
type FalseLit struct{ span }
type VarargExpr struct{ span }

type NumberLit struct {
	span
	Raw string
}

type StringLit struct {
	span
	Value string
}

// BinaryExpr covers all binary operators including "and"/"or", so
// condition decomposition can walk a uniform expression tree instead
// of special-casing logical operators.
type BinaryExpr struct {
	span
	Op   Token
	X, Y Expr
}

type UnaryExpr struct {
	span
	Op Token
	X  Expr
}

type ParenExpr struct {
	span
	X Expr
}

// IndexExpr: a[b]
type IndexExpr struct {
	span
	X, Index Expr
}

// FieldExpr: a.b
type FieldExpr struct {
	span
	X    Expr
	Name string
}

// CallExpr: f(args) or obj:method(args)
type CallExpr struct {
	span
	Fn     Expr
	Method string // non-empty for obj:method(...) calls
	Args   []Expr
}

// TableField is one table-constructor entry: [key]=val, name=val, or val.
type TableField struct {
	Key   Expr // nil for positional entries
	Name  string
	Value Expr
}

// TableExpr: { ... }
type TableExpr struct {
	span
	Fields []TableField
}
