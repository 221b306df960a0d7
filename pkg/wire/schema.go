package wire

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const featuresSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["features"],
  "properties": {
    "version": {"type": "integer"},
    "features": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "enabled"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "enabled": {"type": "boolean"},
          "strategies": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "parameters": {
                  "type": ["object", "null"],
                  "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
                },
                "constraints": {
                  "type": ["array", "null"],
                  "items": {
                    "type": "object",
                    "required": ["contextName", "operator"],
                    "properties": {
                      "contextName": {"type": "string"},
                      "operator": {"type": "string"},
                      "values": {"type": ["array", "null"], "items": {"type": "string"}},
                      "inverted": {"type": "boolean"},
                      "caseInsensitive": {"type": "boolean"}
                    }
                  }
                },
                "variants": {"$ref": "#/definitions/variants"}
              }
            }
          },
          "variants": {"$ref": "#/definitions/variants"}
        }
      }
    }
  },
  "definitions": {
    "variants": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "weight": {"type": "integer", "minimum": 0},
          "payload": {
            "type": ["object", "null"],
            "properties": {"type": {"type": "string"}, "value": {"type": "string"}}
          }
        }
      }
    }
  }
}`

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(featuresSchema))
	if err != nil {
		panic(fmt.Errorf("compile features schema: %w", err))
	}
	return s
}()

func validate(body []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrParse, strings.Join(msgs, "; "))
}
