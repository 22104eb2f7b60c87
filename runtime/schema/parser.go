// Package schema loads the datamodel (models, fields, ids and unique
// constraints) from a Prisma schema using Participle.
package schema

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// rawSchema is the raw parse tree structure that matches the grammar.
// It is converted to a Datamodel after parsing.
type rawSchema struct {
	Pos    lexer.Position
	Blocks []*rawBlock `@@*`
}

type rawBlock struct {
	Model  *rawModel  `  @@`
	Enum   *rawEnum   `| @@`
	Config *rawConfig `| @@`
}

type rawModel struct {
	Pos        lexer.Position
	Name       string               `("model" | "view") @Ident "{"`
	Fields     []*rawField          `@@*`
	Attributes []*rawBlockAttribute `@@* "}"`
}

type rawField struct {
	Pos        lexer.Position
	Name       string          `@Ident`
	Type       string          `@Ident`
	List       bool            `@("[" "]")?`
	Optional   bool            `@"?"?`
	Attributes []*rawAttribute `@@*`
}

type rawEnum struct {
	Pos        lexer.Position
	Name       string               `"enum" @Ident "{"`
	Values     []*rawEnumValue      `@@*`
	Attributes []*rawBlockAttribute `@@* "}"`
}

type rawEnumValue struct {
	Name       string          `@Ident`
	Attributes []*rawAttribute `@@*`
}

type rawConfig struct {
	Kind    string            `@("datasource" | "generator")`
	Name    string            `@Ident "{"`
	Entries []*rawConfigEntry `@@* "}"`
}

type rawConfigEntry struct {
	Key   string    `@Ident "="`
	Value *rawValue `@@`
}

type rawAttribute struct {
	Name string         `"@" @Ident ( @"." @Ident )*`
	Args []*rawArgument `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

type rawBlockAttribute struct {
	Name string         `"@@" @Ident ( @"." @Ident )*`
	Args []*rawArgument `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

type rawArgument struct {
	Name  *string   `( @Ident ":" )?`
	Value *rawValue `@@`
}

type rawValue struct {
	Call   *rawCall    `  @@`
	Array  []*rawValue `| "[" ( @@ ( "," @@ )* )? "]"`
	String *string     `| @String`
	Number *float64    `| @Number`
	Ident  *string     `| @Ident`
}

type rawCall struct {
	Name string         `@Ident "("`
	Args []*rawArgument `( @@ ( "," @@ )* )? ")"`
}

// parser is the Participle parser instance.
var parser = participle.MustBuild[rawSchema](
	participle.Lexer(prismaLexer),
	participle.Elide("Whitespace", "Newline", "Comment", "MultiLineComment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)

// Parse parses a Prisma schema from an io.Reader.
func Parse(filename string, r io.Reader) (*Datamodel, error) {
	raw, err := parser.Parse(filename, r)
	if err != nil {
		return nil, err
	}
	return convert(raw)
}

// ParseString parses a Prisma schema from a string.
func ParseString(filename, input string) (*Datamodel, error) {
	return Parse(filename, strings.NewReader(input))
}

// MustParseString parses a Prisma schema from a string, panicking on error.
func MustParseString(filename, input string) *Datamodel {
	dm, err := ParseString(filename, input)
	if err != nil {
		panic(err)
	}
	return dm
}

// ParseFile parses the schema file at path.
func ParseFile(path string) (*Datamodel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()
	return Parse(path, f)
}

func convert(raw *rawSchema) (*Datamodel, error) {
	dm := &Datamodel{}
	enums := map[string]bool{}
	for _, b := range raw.Blocks {
		if b.Enum != nil {
			enums[b.Enum.Name] = true
		}
	}
	models := map[string]bool{}
	for _, b := range raw.Blocks {
		if b.Model != nil {
			if models[b.Model.Name] {
				return nil, fmt.Errorf("%s: model %q is defined more than once", b.Model.Pos, b.Model.Name)
			}
			models[b.Model.Name] = true
		}
	}

	for _, b := range raw.Blocks {
		switch {
		case b.Model != nil:
			m, err := convertModel(b.Model, models, enums)
			if err != nil {
				return nil, err
			}
			dm.Models = append(dm.Models, m)
		case b.Enum != nil:
			e := &Enum{Name: b.Enum.Name}
			for _, v := range b.Enum.Values {
				e.Values = append(e.Values, v.Name)
			}
			dm.Enums = append(dm.Enums, e)
		case b.Config != nil:
			c := &ConfigBlock{Kind: b.Config.Kind, Name: b.Config.Name, Values: map[string]interface{}{}}
			for _, entry := range b.Config.Entries {
				c.Values[entry.Key] = entry.Value.literal()
			}
			dm.Configs = append(dm.Configs, c)
		}
	}
	return dm, nil
}

func convertModel(raw *rawModel, models, enums map[string]bool) (*Model, error) {
	m := &Model{Name: raw.Name}
	for _, rf := range raw.Fields {
		f := &Field{
			Name:     rf.Name,
			Type:     rf.Type,
			List:     rf.List,
			Optional: rf.Optional,
			Relation: models[rf.Type],
			Enum:     enums[rf.Type],
		}
		for _, attr := range rf.Attributes {
			switch attr.Name {
			case "id":
				f.ID = true
				m.ID = []string{f.Name}
			case "unique":
				f.Unique = true
			case "updatedAt":
				f.UpdatedAt = true
			case "default":
				if len(attr.Args) == 0 {
					return nil, fmt.Errorf("%s: @default on %s.%s needs a value", rf.Pos, raw.Name, rf.Name)
				}
				f.Default = attr.Args[0].Value.toDefault()
			}
		}
		if !f.Relation && !f.Enum && !isScalar(f.Type) {
			return nil, fmt.Errorf("%s: unknown type %q on %s.%s", rf.Pos, rf.Type, raw.Name, rf.Name)
		}
		m.Fields = append(m.Fields, f)
	}

	for _, attr := range raw.Attributes {
		if len(attr.Args) == 0 {
			continue
		}
		names := attr.Args[0].Value.identList()
		switch attr.Name {
		case "id":
			m.ID = names
		case "unique":
			m.UniqueGroups = append(m.UniqueGroups, names)
		}
	}
	for _, group := range append([][]string{m.ID}, m.UniqueGroups...) {
		for _, name := range group {
			if m.Field(name) == nil {
				return nil, fmt.Errorf("%s: model %s references unknown field %q", raw.Pos, raw.Name, name)
			}
		}
	}
	return m, nil
}

func (v *rawValue) literal() interface{} {
	switch {
	case v.String != nil:
		return *v.String
	case v.Number != nil:
		return *v.Number
	case v.Ident != nil:
		switch *v.Ident {
		case "true":
			return true
		case "false":
			return false
		}
		return *v.Ident
	case v.Call != nil:
		if v.Call.Name == "env" && len(v.Call.Args) == 1 && v.Call.Args[0].Value.String != nil {
			return os.Getenv(*v.Call.Args[0].Value.String)
		}
		return v.Call.Name + "()"
	case v.Array != nil:
		out := make([]interface{}, len(v.Array))
		for i, item := range v.Array {
			out[i] = item.literal()
		}
		return out
	}
	return nil
}

func (v *rawValue) toDefault() *Default {
	if v.Call != nil {
		return &Default{Function: v.Call.Name}
	}
	return &Default{Value: v.literal()}
}

func (v *rawValue) identList() []string {
	var names []string
	for _, item := range v.Array {
		if item.Ident != nil {
			names = append(names, *item.Ident)
		}
	}
	return names
}
