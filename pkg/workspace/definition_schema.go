package workspace

// DefinitionSchema is the JSON Schema for declarative toolkit files.
const DefinitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "tools"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z0-9-]+$",
      "description": "Toolkit namespace"
    },
    "description": { "type": "string" },
    "version": {
      "type": "string",
      "description": "Semver version"
    },
    "author": { "type": "string" },
    "tools": {
      "type": "object",
      "propertyNames": { "pattern": "^[a-z0-9-]+$" },
      "additionalProperties": {
        "type": "object",
        "required": ["implementation"],
        "properties": {
          "metadata": {
            "type": "object",
            "properties": {
              "description": { "type": "string" },
              "version": { "type": "string" },
              "author": { "type": "string" },
              "tags": { "type": "array", "items": { "type": "string" } }
            },
            "additionalProperties": false
          },
          "implementation": {
            "type": "object",
            "required": ["kind"],
            "properties": {
              "kind": { "type": "string", "enum": ["native", "http", "remote"] },
              "input_schema": { "type": "object" },
              "output_schema": { "type": "object" },
              "function": { "type": "string", "minLength": 1 },
              "url": { "type": "string", "minLength": 1 },
              "method": {
                "type": "string",
                "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "get", "post", "put", "patch", "delete"]
              },
              "headers": {
                "type": "object",
                "additionalProperties": { "type": "string" }
              },
              "body_mapping": {
                "type": "object",
                "additionalProperties": { "type": "string" }
              },
              "timeout": { "type": "string" },
              "service": { "type": "string", "minLength": 1 },
              "version": { "type": "string" }
            },
            "allOf": [
              {
                "if": { "properties": { "kind": { "const": "native" } } },
                "then": { "required": ["function"] }
              },
              {
                "if": { "properties": { "kind": { "const": "http" } } },
                "then": { "required": ["url"] }
              },
              {
                "if": { "properties": { "kind": { "const": "remote" } } },
                "then": { "required": ["service"] }
              }
            ]
          }
        }
      }
    }
  }
}`
