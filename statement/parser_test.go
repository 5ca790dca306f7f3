package statement

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cryguy/adhesive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceFunction(t *testing.T) {
	stmt, err := Parse(`
		-- multiplies two columns
		CREATE FUNCTION f1(a BIGINT, b BIGINT)
		RETURNS BIGINT
		LANGUAGE JAVASCRIPT
		AS 'class NewClass extends Adhesive {
		  compute(row) { return row.getBigInt(0) * row.getBigInt(1); } // it''s fine
		}';`)
	require.NoError(t, err)

	assert.Equal(t, "f1", stmt.Name)
	assert.False(t, stmt.OrReplace)
	require.Len(t, stmt.Args, 2)
	assert.Equal(t, "a", stmt.Args[0].Name)
	assert.Equal(t, "b", stmt.Args[1].Name)
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int64, stmt.Args[0].Type))
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int64, stmt.ReturnType))
	assert.Equal(t, "JAVASCRIPT", stmt.Language)
	require.NotNil(t, stmt.Body)
	assert.Equal(t, adhesive.SingleQuoted, stmt.Body.Quote)
	assert.Contains(t, stmt.Body.Value, "// it's fine")
}

func TestParseClassFunction(t *testing.T) {
	stmt, err := Parse(`create or replace function f2(BIGINT, BIGINT) returns BIGINT as "com.example.BasicExample" language CLASS`)
	require.NoError(t, err)

	assert.True(t, stmt.OrReplace)
	require.Len(t, stmt.Args, 2)
	assert.Empty(t, stmt.Args[0].Name)
	assert.Equal(t, "CLASS", stmt.Language)
	assert.Equal(t, &adhesive.DefinitionStatement{Quote: adhesive.DoubleQuoted, Value: "com.example.BasicExample"}, stmt.Body)
}

func TestParseWithoutBody(t *testing.T) {
	stmt, err := Parse("CREATE FUNCTION f() RETURNS BIGINT;")
	require.NoError(t, err)
	assert.Empty(t, stmt.Args)
	assert.Nil(t, stmt.Body)
	assert.Empty(t, stmt.Language)
}

func TestParseTypes(t *testing.T) {
	stmt, err := Parse(`CREATE FUNCTION g(x DOUBLE PRECISION, VARCHAR(20), flag boolean, n int) RETURNS bigint AS 'class G {}'`)
	require.NoError(t, err)
	require.Len(t, stmt.Args, 4)

	assert.Equal(t, "x", stmt.Args[0].Name)
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Float64, stmt.Args[0].Type))
	assert.Empty(t, stmt.Args[1].Name)
	assert.True(t, arrow.TypeEqual(arrow.BinaryTypes.String, stmt.Args[1].Type))
	assert.Equal(t, "flag", stmt.Args[2].Name)
	assert.True(t, arrow.TypeEqual(arrow.FixedWidthTypes.Boolean, stmt.Args[2].Type))
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int32, stmt.Args[3].Type))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"empty", ""},
		{"not create", "DROP FUNCTION f"},
		{"missing function keyword", "CREATE f() RETURNS BIGINT"},
		{"or without replace", "CREATE OR FUNCTION f() RETURNS BIGINT"},
		{"unknown type", "CREATE FUNCTION f(a WIDGET) RETURNS BIGINT"},
		{"unknown return type", "CREATE FUNCTION f() RETURNS WIDGET"},
		{"missing returns", "CREATE FUNCTION f(a BIGINT) AS 'x'"},
		{"unterminated body", "CREATE FUNCTION f() RETURNS BIGINT AS 'class"},
		{"unquoted body", "CREATE FUNCTION f() RETURNS BIGINT AS BasicExample"},
		{"duplicate body", "CREATE FUNCTION f() RETURNS BIGINT AS 'a' AS 'b'"},
		{"trailing tokens", "CREATE FUNCTION f() RETURNS BIGINT AS 'a'; extra"},
		{"trailing comma", "CREATE FUNCTION f(a BIGINT,"},
		{"bad character", "CREATE FUNCTION f() RETURNS BIGINT @"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.sql)
			assert.Error(t, err)
		})
	}
}

func TestParseCall(t *testing.T) {
	call, err := ParseCall("f1(a, b)")
	require.NoError(t, err)
	assert.Equal(t, &Call{Function: "f1", Args: []string{"a", "b"}}, call)

	call, err = ParseCall("now()")
	require.NoError(t, err)
	assert.Equal(t, "now", call.Function)
	assert.Empty(t, call.Args)

	for _, bad := range []string{"", "f1", "f1(a", "f1(a b)", "f1(a) x", "f1('a')"} {
		_, err := ParseCall(bad)
		assert.Error(t, err, bad)
	}
}

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize("f('it''s', \"a\"\"b\")\n;")
	require.NoError(t, err)
	assert.Equal(t, []Token{
		{"f", Ident, 1},
		{"(", LParen, 1},
		{"it's", SingleQuoted, 1},
		{",", Comma, 1},
		{`a"b`, DoubleQuoted, 1},
		{")", RParen, 1},
		{";", Semicolon, 2},
	}, tokens)
}

func TestLookupType(t *testing.T) {
	dt, ok := LookupType("  double   precision ")
	require.True(t, ok)
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Float64, dt))

	_, ok = LookupType("decimal")
	assert.False(t, ok)
}
