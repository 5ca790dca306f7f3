package adhesive

import (
	"fmt"

	"github.com/goccy/go-json"
)

// FunctionDefinition records how a function was declared. It is one of
// FullyQualifiedName, SourceCode or CompiledBytecode.
type FunctionDefinition interface {
	definitionKind() string
}

// FullyQualifiedName names an existing class on the class path.
type FullyQualifiedName struct {
	Name string
}

// SourceCode is class source submitted with the statement.
type SourceCode struct {
	Language string
	Text     string
}

// CompiledBytecode is reserved for compiled artifacts. Registration never
// produces it.
type CompiledBytecode struct {
	Bytecode []byte
	Name     string
}

// Definition kinds as they appear in serialized definitions and metric
// labels.
const (
	KindFullyQualifiedName = "fully_qualified_name"
	KindSourceCode         = "source_code"
	KindCompiledBytecode   = "compiled_bytecode"
)

func (FullyQualifiedName) definitionKind() string { return KindFullyQualifiedName }
func (SourceCode) definitionKind() string         { return KindSourceCode }
func (CompiledBytecode) definitionKind() string   { return KindCompiledBytecode }

type definitionJSON struct {
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
	Bytecode []byte `json:"bytecode,omitempty"`
}

// MarshalDefinition encodes def as JSON.
func MarshalDefinition(def FunctionDefinition) ([]byte, error) {
	var out definitionJSON
	switch d := def.(type) {
	case FullyQualifiedName:
		out = definitionJSON{Kind: KindFullyQualifiedName, Name: d.Name}
	case SourceCode:
		out = definitionJSON{Kind: KindSourceCode, Language: d.Language, Text: d.Text}
	case CompiledBytecode:
		out = definitionJSON{Kind: KindCompiledBytecode, Name: d.Name, Bytecode: d.Bytecode}
	default:
		return nil, fmt.Errorf("unknown function definition %T", def)
	}
	return json.Marshal(out)
}

// UnmarshalDefinition decodes a definition written by MarshalDefinition.
func UnmarshalDefinition(data []byte) (FunctionDefinition, error) {
	var in definitionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding function definition: %w", err)
	}
	switch in.Kind {
	case KindFullyQualifiedName:
		return FullyQualifiedName{Name: in.Name}, nil
	case KindSourceCode:
		return SourceCode{Language: in.Language, Text: in.Text}, nil
	case KindCompiledBytecode:
		return CompiledBytecode{Bytecode: in.Bytecode, Name: in.Name}, nil
	default:
		return nil, fmt.Errorf("unknown function definition kind %q", in.Kind)
	}
}
