package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelgate.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile("ignite_req.schema.json"), `{
	  "world_id":"OVERWORLD",
	  "anchor":[4,1,0],
	  "axis":"X",
	  "width":2,
	  "height":3
	}`)
	validate(compile("stabilize_req.schema.json"), `{
	  "world_id":"RIFT",
	  "actor_id":"T1",
	  "near":[0,1,0]
	}`)
	validate(compile("set_blocks_req.schema.json"), `{
	  "world_id":"OVERWORLD",
	  "blocks":[{"pos":[-1,64,0],"block":"FRAME"},{"pos":[0,65,0],"block":"AIR"}]
	}`)
	validate(compile("spawn_traveler_req.schema.json"), `{
	  "world_id":"RIFT",
	  "traveler_id":"builder",
	  "pos":[3,32,0],
	  "height":2,
	  "inventory":{"RIFT_ANCHOR":1}
	}`)
	validate(compile("move_traveler_req.schema.json"), `{
	  "traveler_id":"T1",
	  "pos":[0,65,4]
	}`)
	validate(compile("notice.schema.json"), `{
	  "type":"NOTICE",
	  "protocol_version":"1.0",
	  "event_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV",
	  "tick":81,
	  "kind":"TRANSIT",
	  "world_id":"OVERWORLD",
	  "gate_id":"G1",
	  "traveler_id":"T1",
	  "to_world_id":"RIFT",
	  "pos":[0,1,0]
	}`)
	validate(compile("gate_record.schema.json"), `{
	  "gate_id":"G12",
	  "world_id":"RIFT",
	  "anchor":[-3,8,2],
	  "axis":"Z",
	  "width":2,
	  "height":3,
	  "state":"STABILIZED",
	  "linked_gate_id":"G3"
	}`)
}

func TestValidate_RejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		schema string
		raw    string
	}{
		{"axis", protocol.SchemaIgniteReq, `{"world_id":"W","anchor":[0,0,0],"axis":"Y","width":2,"height":3}`},
		{"too_tall", protocol.SchemaIgniteReq, `{"world_id":"W","anchor":[0,0,0],"axis":"X","width":2,"height":40}`},
		{"short_anchor", protocol.SchemaIgniteReq, `{"world_id":"W","anchor":[0,0],"axis":"X","width":2,"height":3}`},
		{"missing_actor", protocol.SchemaStabilizeReq, `{"world_id":"W","near":[0,0,0]}`},
		{"extra_field", protocol.SchemaStabilizeReq, `{"world_id":"W","actor_id":"T1","near":[0,0,0],"force":true}`},
		{"not_json", protocol.SchemaStabilizeReq, `{`},
		{"gate_block", protocol.SchemaSetBlocksReq, `{"world_id":"W","blocks":[{"pos":[0,0,0],"block":"GATE"}]}`},
		{"no_blocks", protocol.SchemaSetBlocksReq, `{"world_id":"W","blocks":[]}`},
		{"spawn_no_id", protocol.SchemaSpawnTravelerReq, `{"world_id":"W","pos":[0,0,0]}`},
		{"negative_item", protocol.SchemaSpawnTravelerReq, `{"world_id":"W","traveler_id":"a","pos":[0,0,0],"inventory":{"X":-1}}`},
		{"move_short_pos", protocol.SchemaMoveTravelerReq, `{"traveler_id":"a","pos":[0,0]}`},
	}
	for _, tc := range cases {
		if err := protocol.Validate(tc.schema, []byte(tc.raw)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if err := protocol.Validate(protocol.SchemaIgniteReq, []byte(`{"world_id":"W","anchor":[0,1,0],"axis":"Z","width":2,"height":3}`)); err != nil {
		t.Fatalf("valid ignite rejected: %v", err)
	}
	if err := protocol.Validate("nope", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown schema error")
	}
}
