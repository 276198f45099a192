// Package pluginsdk is the plugin-side dynamic invoker and channel client:
// hosts use it to describe callables, open the plugin channel to a bridge,
// and answer bridge-initiated RunCallTool/RunListTool/... calls.
package pluginsdk

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	schemav6 "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/roadrunner-server/errors"
)

// SchemaProvider synthesises JSON schemas for a callable's formal
// parameters and return type. The core invoker only needs a Go value's
// reflected type to produce a schema; hosts that want a different
// generator may supply their own implementation.
type SchemaProvider interface {
	// Schema returns the JSON schema describing v's type.
	Schema(v any) (json.RawMessage, error)
}

// ReflectSchemaProvider is the default SchemaProvider, backed by
// invopop/jsonschema's struct reflector.
type ReflectSchemaProvider struct {
	reflector *jsonschema.Reflector
}

// NewReflectSchemaProvider builds the default schema provider. Definitions
// are expanded inline (no $defs indirection) so a single tool's
// InputSchema is self-contained on the wire.
func NewReflectSchemaProvider() *ReflectSchemaProvider {
	return &ReflectSchemaProvider{
		reflector: &jsonschema.Reflector{
			DoNotReference:            true,
			ExpandedStruct:            true,
			AllowAdditionalProperties: false,
		},
	}
}

// Schema reflects v's type into a JSON schema document.
func (p *ReflectSchemaProvider) Schema(v any) (json.RawMessage, error) {
	const op = errors.Op("pluginsdk_schema")
	if v == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil
	}
	s := p.reflector.Reflect(v)
	patchSerializedMember(s)
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return b, nil
}

// patchSerializedMember fixes the generic "serialized member" definition:
// when its value property was reflected as type:"object", that "type" key
// is removed so the field accepts any JSON value, not only objects.
func patchSerializedMember(s *jsonschema.Schema) {
	if s == nil || s.Definitions == nil {
		return
	}
	def, ok := s.Definitions["SerializedMember"]
	if !ok || def.Properties == nil {
		return
	}
	valueProp, ok := def.Properties.Get("value")
	if !ok || valueProp == nil {
		return
	}
	if valueProp.Type == "object" {
		valueProp.Type = ""
	}
}

// Validator validates arguments against a previously compiled schema.
// RegisterTool compiles every generated input schema into one, rejecting
// malformed schemas at registration time, and CallTool validates each
// named-argument payload against it before the dispatch touches
// reflection.
type Validator struct {
	schema *schemav6.Schema
}

// CompileValidator compiles a JSON schema document.
func CompileValidator(schemaDoc json.RawMessage, resourceID string) (*Validator, error) {
	const op = errors.Op("pluginsdk_compile_validator")

	var doc any
	if err := json.Unmarshal(schemaDoc, &doc); err != nil {
		return nil, errors.E(op, err)
	}

	compiler := schemav6.NewCompiler()
	if err := compiler.AddResource(resourceID, doc); err != nil {
		return nil, errors.E(op, err)
	}
	schema, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks arguments (raw JSON) against the compiled schema. A nil
// Validator always validates successfully.
func (v *Validator) Validate(arguments json.RawMessage) error {
	const op = errors.Op("pluginsdk_validate")
	if v == nil || v.schema == nil {
		return nil
	}
	if len(arguments) == 0 {
		arguments = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(arguments))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return errors.E(op, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// reflectZero builds the zero value of t as an any, used to derive an
// output schema from a function's return type without calling it.
func reflectZero(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.New(t).Elem().Interface()
}
