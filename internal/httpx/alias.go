package httpx

import "encoding/json"

// TypeField is the wire name atproto records use for their discriminant,
// which collides with Go's struct-tag syntax and most JSON libraries'
// treatment of a leading '$' — callers embed TypedValue instead of a
// literal `$type` field.
const TypeField = "$type"

// TypedValue wraps a record body with its wire-required `$type` tag. It
// marshals/unmarshals as a flat object: {"$type": "...", <payload
// fields>...}. Go's encoding/json cannot express that composition with
// normal struct embedding given the leading-dollar field name, so we
// assemble/parse the object through a map instead of a tagged field.
type TypedValue struct {
	Type    string
	Payload interface{}
}

// Aliases maps logical field names used within this codebase to their
// wire names, for any remaining collisions beyond $type; WireName looks
// names up in it. TypedValue's MarshalJSON/UnmarshalJSON do not consult
// it: they use TypeField directly.
var Aliases = map[string]string{
	"type": TypeField,
}

// MarshalJSON flattens Payload's fields alongside the $type tag. Payload
// must marshal to a JSON object.
func (t TypedValue) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(t.Type)
	if err != nil {
		return nil, err
	}
	fields[TypeField] = typeJSON
	return json.Marshal(fields)
}

// UnmarshalJSON splits the $type tag back out, leaving Payload as the
// raw remaining object for the caller to decode into a concrete type.
func (t *TypedValue) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields[TypeField]; ok {
		if err := json.Unmarshal(raw, &t.Type); err != nil {
			return err
		}
		delete(fields, TypeField)
	}
	rest, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	t.Payload = json.RawMessage(rest)
	return nil
}

func WireName(logical string) string {
	if wire, ok := Aliases[logical]; ok {
		return wire
	}
	return logical
}
