package conversations

import "github.com/invopop/jsonschema"

// DocumentSchema describes the persisted conversation document.
func DocumentSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Document{})
	schema.Title = "Conversation"
	schema.Description = "Persisted transcript of a single voice conversation"
	return schema
}
