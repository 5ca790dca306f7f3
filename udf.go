package adhesive

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// FunctionFactory turns CREATE FUNCTION statements into scalar functions.
type FunctionFactory interface {
	Create(stmt *CreateFunction) (*RegisterFunction, error)
}

// ScalarUDF is a registered scalar function as the query engine sees it.
type ScalarUDF interface {
	Name() string
	ArgTypes() []arrow.DataType
	Signature() Signature
	ReturnType(argTypes []arrow.DataType) (arrow.DataType, error)
	Invoke(args []ColumnarValue, numRows int) (ColumnarValue, error)
}

// RegisterFunction is the factory's answer to a statement.
type RegisterFunction struct {
	Scalar ScalarUDF
}

// Quote is the quoting style of a definition body.
type Quote int

const (
	// SingleQuoted bodies carry source text.
	SingleQuoted Quote = iota
	// DoubleQuoted bodies carry a class name.
	DoubleQuoted
)

func (q Quote) String() string {
	switch q {
	case SingleQuoted:
		return "single-quoted"
	case DoubleQuoted:
		return "double-quoted"
	default:
		return fmt.Sprintf("Quote(%d)", int(q))
	}
}

// DefinitionStatement is the AS clause of a CREATE FUNCTION.
type DefinitionStatement struct {
	Quote Quote
	Value string
}

// FunctionArg is one declared argument. Name may be empty.
type FunctionArg struct {
	Name string
	Type arrow.DataType
}

// CreateFunction is a parsed CREATE FUNCTION statement.
type CreateFunction struct {
	Name       string
	OrReplace  bool
	Args       []FunctionArg
	ReturnType arrow.DataType
	Language   string // empty selects javascript
	Body       *DefinitionStatement
}

// ArgTypes returns the declared argument types in order.
func (c *CreateFunction) ArgTypes() []arrow.DataType {
	types := make([]arrow.DataType, len(c.Args))
	for i, a := range c.Args {
		types[i] = a.Type
	}
	return types
}

// Volatility tells the planner whether results may be folded.
type Volatility int

const (
	Immutable Volatility = iota
	Stable
	Volatile
)

func (v Volatility) String() string {
	switch v {
	case Immutable:
		return "immutable"
	case Stable:
		return "stable"
	case Volatile:
		return "volatile"
	default:
		return fmt.Sprintf("Volatility(%d)", int(v))
	}
}

// Signature describes accepted argument types. Exact signatures match
// positionally with no coercion.
type Signature struct {
	ArgTypes   []arrow.DataType
	Exact      bool
	Volatility Volatility
}

// Matches reports whether argTypes are accepted.
func (s Signature) Matches(argTypes []arrow.DataType) bool {
	if len(argTypes) != len(s.ArgTypes) {
		return false
	}
	for i, t := range s.ArgTypes {
		if !arrow.TypeEqual(t, argTypes[i]) {
			return false
		}
	}
	return true
}

// ColumnarValue is a batch argument or result: a column or a scalar that
// stands for a column of identical values.
type ColumnarValue struct {
	Array  arrow.Array
	Scalar scalar.Scalar
}

// ArrayValue wraps a column.
func ArrayValue(arr arrow.Array) ColumnarValue {
	return ColumnarValue{Array: arr}
}

// ScalarValue wraps a scalar.
func ScalarValue(s scalar.Scalar) ColumnarValue {
	return ColumnarValue{Scalar: s}
}

// DataType returns the value's type.
func (v ColumnarValue) DataType() arrow.DataType {
	switch {
	case v.Array != nil:
		return v.Array.DataType()
	case v.Scalar != nil:
		return v.Scalar.DataType()
	default:
		return nil
	}
}

// ToArray returns the value as a column of numRows entries, broadcasting a
// scalar. The caller releases the result.
func (v ColumnarValue) ToArray(numRows int, mem memory.Allocator) (arrow.Array, error) {
	switch {
	case v.Array != nil:
		v.Array.Retain()
		return v.Array, nil
	case v.Scalar != nil:
		arr, err := scalar.MakeArrayFromScalar(v.Scalar, numRows, mem)
		if err != nil {
			return nil, fmt.Errorf("broadcasting %s scalar: %w", v.Scalar.DataType(), err)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("empty columnar value")
	}
}

// Release drops the wrapped column, if any.
func (v ColumnarValue) Release() {
	if v.Array != nil {
		v.Array.Release()
	}
}
