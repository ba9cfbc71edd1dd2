package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource []byte

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("config schema has no #Config definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// SchemaError lists every problem the schema found in a config file.
type SchemaError struct {
	File     string
	Problems []string
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", e.File, e.Problems[0])
	}
	return fmt.Sprintf("%s: %d problems, first: %s", e.File, len(e.Problems), e.Problems[0])
}

// CheckSchema validates raw YAML against the embedded #Config definition.
// Unknown keys are rejected because the definition is closed.
func CheckSchema(name string, data []byte) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	v := ctx.BuildFile(file)
	if err := v.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		se := &SchemaError{File: name}
		for _, e := range cueerrors.Errors(err) {
			se.Problems = append(se.Problems, e.Error())
		}
		if len(se.Problems) == 0 {
			se.Problems = []string{err.Error()}
		}
		return se
	}
	return nil
}
