// Package expr parses and evaluates debugger watch expressions.
//
// The grammar is deliberately small:
//
//	expr     := root accessor*
//	root     := boolean | null | identifier | number | char | string
//	accessor := '[' expr ']'
//	          | '.' identifier ( '(' args ')' )? ( '[' expr ']' )*
//
// Operators are not supported and method calls parse but are rejected at
// evaluation time. Evaluation resolves the root against the current frame or
// a literal, then applies each accessor in order, fetching array elements and
// fields from the remote agent as needed.
package expr

// TermKind classifies the root term of an expression.
type TermKind int

const (
	TermBoolean TermKind = iota
	TermNull
	TermIdent
	TermNumber
	TermChar
	TermEscapedChar
	TermUnicodeChar
	TermString
)

// String returns the kind name.
func (k TermKind) String() string {
	switch k {
	case TermBoolean:
		return "boolean"
	case TermNull:
		return "null"
	case TermIdent:
		return "ident"
	case TermNumber:
		return "number"
	case TermChar:
		return "char"
	case TermEscapedChar:
		return "echar"
	case TermUnicodeChar:
		return "uchar"
	case TermString:
		return "string"
	default:
		return "unknown"
	}
}

// Expr is a parsed expression.
type Expr struct {
	// Root is the source text of the root term, including quotes for
	// char and string literals.
	Root string

	// Kind classifies Root.
	Kind TermKind

	// Accessors are applied to the root value left to right.
	Accessors []Accessor
}

// Accessor is an index or member access applied to a value.
// The concrete types are Index and Member.
type Accessor interface {
	accessor()
}

// Index is an array index accessor: value[Expr].
type Index struct {
	Expr *Expr
}

// Member is a field access with optional call arguments and trailing indexes:
// value.Name, value.Name[i], value.Name(args)[i].
type Member struct {
	Name string

	// Call holds call arguments; nil when the member is not called.
	Call *Call

	// Indexes are applied to the member's value in order.
	Indexes []*Expr
}

// Call is the argument list of a method call.
type Call struct {
	Args []*Expr
}

func (Index) accessor()  {}
func (Member) accessor() {}
