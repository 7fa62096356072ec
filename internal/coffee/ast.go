package coffee

// Node is any statement or expression in the syntax tree.
type Node interface {
	node()
}

// Block is a sequence of statements at one indentation level.
type Block struct {
	Statements []Node
}

// Statements

type (
	If struct {
		Line int
		Cond Node
		Then *Block
		Else Node // *Block, *If or nil
	}

	While struct {
		Cond  Node
		Guard Node
		Body  *Block
	}

	// For covers both `for v, i in array` and `for k, v of object`.
	For struct {
		Name   string
		Index  string
		Source Node
		Of     bool
		Own    bool
		Guard  Node
		Body   *Block
	}

	Try struct {
		Body      *Block
		CatchName string
		Catch     *Block
		Finally   *Block
	}

	Return struct {
		Value Node
	}

	Throw struct {
		Value Node
	}

	Break    struct{}
	Continue struct{}
)

// Expressions

type (
	Ident struct {
		Name string
	}

	Literal struct {
		Value string
	}

	This struct{}

	Str struct {
		Quote byte
		Parts []StrPart
	}

	Array struct {
		Elements []Node
	}

	Object struct {
		Props []Prop
	}

	Func struct {
		Params []Param
		Body   *Block
		Bound  bool
	}

	Member struct {
		Object Node
		Name   string
	}

	Index struct {
		Object Node
		Index  Node
	}

	Call struct {
		Callee Node
		Args   []Node
		New    bool
	}

	Binary struct {
		Op    string
		Left  Node
		Right Node
	}

	Unary struct {
		Op      string
		Operand Node
	}

	// In is membership in an array, `x in list`.
	In struct {
		Value Node
		List  Node
	}

	Existence struct {
		Value Node
	}

	Assign struct {
		Line   int
		Op     string
		Target Node
		Value  Node
	}

	Paren struct {
		Inner Node
	}

	// IfExpr is an if used as a value.
	IfExpr struct {
		If *If
	}
)

// StrPart is either literal text or an interpolated expression.
type StrPart struct {
	Text string
	Expr Node
}

// Prop is one key: value pair of an object literal.
type Prop struct {
	Key   string
	Value Node
}

// Param is a function parameter. This marks @name parameters.
type Param struct {
	Name    string
	Default Node
	This    bool
}

func (*Block) node()     {}
func (*If) node()        {}
func (*While) node()     {}
func (*For) node()       {}
func (*Try) node()       {}
func (*Return) node()    {}
func (*Throw) node()     {}
func (*Break) node()     {}
func (*Continue) node()  {}
func (*Ident) node()     {}
func (*Literal) node()   {}
func (*This) node()      {}
func (*Str) node()       {}
func (*Array) node()     {}
func (*Object) node()    {}
func (*Func) node()      {}
func (*Member) node()    {}
func (*Index) node()     {}
func (*Call) node()      {}
func (*Binary) node()    {}
func (*Unary) node()     {}
func (*In) node()        {}
func (*Existence) node() {}
func (*Assign) node()    {}
func (*Paren) node()     {}
func (*IfExpr) node()    {}
