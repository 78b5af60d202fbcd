package filter

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// filterLexer defines the token types of filter expressions.
var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Literals
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "QuotedIdent", Pattern: `"(?:""|[^"])*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`},

	// Identifiers (keywords are matched as identifiers by value)
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},

	// Operators and punctuation
	{Name: "Compare", Pattern: `!=|<>|<=|>=|=|<|>`},
	{Name: "Arith", Pattern: `[-+*/]`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Comma", Pattern: `,`},

	{Name: "Whitespace", Pattern: `\s+`},
})

// orExpr is the grammar root: a disjunction of conjunctions.
type orExpr struct {
	Pos   lexer.Position
	Left  *andExpr   `@@`
	Right []*andExpr `( "or" @@ )*`
}

type andExpr struct {
	Left  *notExpr   `@@`
	Right []*notExpr `( "and" @@ )*`
}

type notExpr struct {
	Negated bool        `@"not"?`
	Cmp     *comparison `@@`
}

type comparison struct {
	Pos  lexer.Position
	Left *sum         `@@`
	Tail *compareTail `@@?`
}

type compareTail struct {
	Binary *binaryTail `  @@`
	Null   *nullTail   `| @@`
	Like   *sum        `| "like" @@`
	In     *inTail     `| "in" @@`
}

type binaryTail struct {
	Op    string `@Compare`
	Right *sum   `@@`
}

type nullTail struct {
	Not bool `"is" @"not"? "null"`
}

type inTail struct {
	Items []*sum `"(" @@ ( "," @@ )* ")"`
}

type sum struct {
	Left *product `@@`
	Rest []*sumOp `@@*`
}

type sumOp struct {
	Op    string   `@("+" | "-")`
	Right *product `@@`
}

type product struct {
	Left *atom        `@@`
	Rest []*productOp `@@*`
}

type productOp struct {
	Op    string `@("*" | "/")`
	Right *atom  `@@`
}

type atom struct {
	Pos    lexer.Position
	Number *string `  @("-"? Number)`
	String *string `| @String`
	Bool   *string `| @("true" | "false")`
	Null   bool    `| @"null"`
	Call   *call   `| @@`
	Column *string `| @(Ident | QuotedIdent)`
	Sub    *orExpr `| "(" @@ ")"`
}

type call struct {
	Name string    `@Ident "("`
	Args []*orExpr `@@ ( "," @@ )* ")"`
}

var parser = participle.MustBuild[orExpr](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)
