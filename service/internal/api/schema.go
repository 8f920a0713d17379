// internal/api/schema.go
package api

import (
	"github.com/invopop/jsonschema"

	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// MatchRecordSchema describes the match output JSON.
func MatchRecordSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&rollout.MatchRecord{})
	schema.Title = "Match Record"
	schema.Description = "Metadata, stage geometry and every decoded frame of one world-model match, seed frames first."
	return schema
}
