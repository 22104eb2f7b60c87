package schema

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// prismaLexer defines the token types for the supported subset of the
// Prisma Schema Language. Keywords are plain identifiers so that fields may
// be called "type" or "model".
var prismaLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Block attribute prefix (must come before single @)
	{Name: "BlockAttr", Pattern: `@@`},
	// Field attribute prefix
	{Name: "FieldAttr", Pattern: `@`},

	// Punctuation
	{Name: "Punct", Pattern: `[{}()\[\]:,.=?]`},

	// Literals
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},

	// Identifiers
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_-]*`},

	// Comments
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "MultiLineComment", Pattern: `/\*(?:[^*]|\*[^/])*\*/`},

	// Whitespace and newlines
	{Name: "Newline", Pattern: `[\r\n]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})
