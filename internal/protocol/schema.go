package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names accepted by Validate.
const (
	SchemaIgniteReq        = "ignite_req"
	SchemaStabilizeReq     = "stabilize_req"
	SchemaSetBlocksReq     = "set_blocks_req"
	SchemaSpawnTravelerReq = "spawn_traveler_req"
	SchemaMoveTravelerReq  = "move_traveler_req"
	SchemaNotice           = "notice"
	SchemaGateRecord       = "gate_record"
)

var schemaNames = []string{
	SchemaIgniteReq,
	SchemaStabilizeReq,
	SchemaSetBlocksReq,
	SchemaSpawnTravelerReq,
	SchemaMoveTravelerReq,
	SchemaNotice,
	SchemaGateRecord,
}

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemaSet  map[string]*jsonschema.Schema
	schemaErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		out := map[string]*jsonschema.Schema{}
		for _, name := range schemaNames {
			file := "schemas/" + name + ".schema.json"
			b, err := schemaFS.ReadFile(file)
			if err != nil {
				schemaErr = err
				return
			}
			s, err := jsonschema.CompileString(file, string(b))
			if err != nil {
				schemaErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			out[name] = s
		}
		schemaSet = out
	})
	return schemaSet, schemaErr
}

// Validate checks raw JSON against one of the embedded schemas.
func Validate(name string, raw []byte) error {
	set, err := loadSchemas()
	if err != nil {
		return err
	}
	s := set[name]
	if s == nil {
		return fmt.Errorf("unknown schema: %s", name)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return s.Validate(v)
}
