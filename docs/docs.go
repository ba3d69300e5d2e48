// Package docs registers the OpenAPI document served by the swagger UI.
// Regenerate with `swag init -g cmd/medqa/docs.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "medqa maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/generate": {
            "post": {
                "description": "Streams NDJSON lines: results, response (cumulative), done. A failure is a single error line; a cancelled stream ends with a cancelled line.",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["generate"],
                "summary": "Ask a question",
                "parameters": [
                    {
                        "description": "Question",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.GenerateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StreamLine"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/cancel": {
            "post": {
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Cancel the running generation",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.CancelResponse"}}
                }
            }
        },
        "/init": {
            "post": {
                "produces": ["application/json"],
                "tags": ["lifecycle"],
                "summary": "Warm up the model",
                "parameters": [
                    {"type": "boolean", "description": "Block until loaded", "name": "wait", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.StatusResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["lifecycle"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/conversations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "List conversations",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.ConversationSummary"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Start a conversation",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.Conversation"}}
                }
            }
        },
        "/conversations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Get a conversation",
                "parameters": [
                    {"type": "string", "description": "Conversation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Conversation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["conversations"],
                "summary": "Delete a conversation",
                "parameters": [
                    {"type": "string", "description": "Conversation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.Turn": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "example": "user"},
                "text": {"type": "string"}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "properties": {
                "query": {"type": "string", "example": "fever in a 2 year old"},
                "history": {"type": "array", "items": {"$ref": "#/definitions/types.Turn"}},
                "use_retrieval": {"type": "boolean", "example": true},
                "conversation_id": {"type": "string"}
            }
        },
        "types.ErrorDetail": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "example": "generation_failed"},
                "message": {"type": "string"}
            }
        },
        "types.StreamLine": {
            "type": "object",
            "properties": {
                "results": {"type": "array", "items": {"type": "string"}},
                "response": {"type": "string"},
                "done": {"type": "boolean"},
                "error": {"$ref": "#/definitions/types.ErrorDetail"},
                "cancelled": {"type": "boolean"},
                "had_partial": {"type": "boolean"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid JSON body"},
                "code": {"type": "integer", "example": 400}
            }
        },
        "types.CancelResponse": {
            "type": "object",
            "properties": {
                "cancelled": {"type": "boolean"},
                "job_id": {"type": "integer"},
                "had_partial": {"type": "boolean"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "backend": {"type": "string", "example": "ready"},
                "backend_error": {"type": "string"},
                "live_job_id": {"type": "integer"},
                "live_job_state": {"type": "string", "example": "generating"},
                "jobs_submitted": {"type": "integer"},
                "jobs_completed": {"type": "integer"},
                "jobs_cancelled": {"type": "integer"},
                "jobs_failed": {"type": "integer"},
                "uptime_seconds": {"type": "integer"}
            }
        },
        "types.Exchange": {
            "type": "object",
            "properties": {
                "query": {"type": "string"},
                "answer": {"type": "string"},
                "passages": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "example": "complete"}
            }
        },
        "types.Conversation": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "exchanges": {"type": "array", "items": {"$ref": "#/definitions/types.Exchange"}},
                "updated_at_unix": {"type": "integer"}
            }
        },
        "types.ConversationSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "updated_at_unix": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "medqa API",
	Description:      "Offline clinical question answering over local guideline passages.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
