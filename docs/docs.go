// Package docs holds the OpenAPI description served by Swagger UI.
//
// Regenerate with:
//
//	swag init -g internal/http/router.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/content": {
            "post": {
                "consumes": ["application/json", "application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["Content"],
                "summary": "Store content",
                "operationId": "storeContent",
                "parameters": [
                    {"type": "string", "description": "Replays the first response for the same key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Content payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.StoreContentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.StoreResult"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "402": {"description": "Insufficient funds", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Payload too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Backend temporarily unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/content/{hash}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["Content"],
                "summary": "Retrieve content by hash",
                "operationId": "retrieveContent",
                "parameters": [
                    {"type": "string", "description": "SHA-256 hex digest", "name": "hash", "in": "path", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}, "headers": {"ETag": {"type": "string", "description": "Strong ETag (the hash)"}}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Invalid hash", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Integrity check failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Backend temporarily unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/interactions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Interactions"],
                "summary": "Interaction history",
                "operationId": "listInteractions",
                "parameters": [
                    {"type": "string", "description": "Filter by actor", "name": "actor_id", "in": "query"},
                    {"type": "string", "description": "Filter by target", "name": "target_id", "in": "query"},
                    {"type": "string", "description": "Filter by kind (case-insensitive)", "name": "kind", "in": "query"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListInteractionsResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Interactions"],
                "summary": "Record an interaction",
                "operationId": "recordInteraction",
                "parameters": [
                    {"type": "string", "description": "Replays the first response for the same key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Interaction", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RecordInteractionRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.RecordInteractionResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/interactions/{id}/verify": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Interactions"],
                "summary": "Verify an interaction",
                "operationId": "verifyInteraction",
                "parameters": [
                    {"type": "string", "description": "Interaction ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.VerifyResult"}}
                }
            }
        },
        "/batches/flush": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Batches"],
                "summary": "Flush pending interactions",
                "operationId": "flushBatch",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Batch"}},
                    "204": {"description": "Nothing to flush"},
                    "500": {"description": "Flush failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/batches/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Batches"],
                "summary": "Get a committed batch",
                "operationId": "getBatch",
                "parameters": [
                    {"type": "string", "description": "Batch ID (UUID)", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Batch"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for the batch state"}}},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "Batch not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Batches"],
                "summary": "Aggregate counters",
                "operationId": "getStats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Stats"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Interaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "actor_id": {"type": "string"},
                "target_id": {"type": "string"},
                "payload": {"type": "object", "additionalProperties": {}},
                "created_at": {"type": "string"},
                "sequence_height": {"type": "integer"},
                "status": {"type": "string", "enum": ["submitted", "confirmed", "finalized", "failed"]},
                "blob_id": {"type": "string"},
                "batch_id": {"type": "string"},
                "position": {"type": "integer"}
            }
        },
        "domain.Batch": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "commitment": {"type": "string"},
                "created_at": {"type": "string"},
                "size_bytes": {"type": "integer"},
                "record_count": {"type": "integer"},
                "blob_ref": {"type": "string"},
                "records": {"type": "array", "items": {"$ref": "#/definitions/domain.Interaction"}}
            }
        },
        "domain.ProofStep": {
            "type": "object",
            "properties": {
                "hash": {"type": "string"},
                "left": {"type": "boolean"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "resource not found"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListInteractionsResponse": {
            "type": "object",
            "properties": {
                "interactions": {"type": "array", "items": {"$ref": "#/definitions/domain.Interaction"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.RecordInteractionRequest": {
            "type": "object",
            "required": ["actor_id", "kind"],
            "properties": {
                "kind": {"type": "string", "maxLength": 64, "example": "like"},
                "actor_id": {"type": "string", "maxLength": 128, "example": "user-42"},
                "target_id": {"type": "string", "maxLength": 128, "example": "post-7"},
                "payload": {"type": "object", "additionalProperties": {}}
            }
        },
        "handlers.RecordInteractionResponse": {
            "type": "object",
            "properties": {
                "interaction_id": {"type": "string", "example": "0b6f3c1e-8d0a-4c55-9a55-2f1f3b0f7f7e"}
            }
        },
        "handlers.StoreContentRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string", "format": "base64", "example": "aGVsbG8gd29ybGQ="},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "services.StoreResult": {
            "type": "object",
            "properties": {
                "hash": {"type": "string"},
                "reference": {"type": "string"},
                "mode": {"type": "string", "enum": ["remote", "existing", "local-fallback"]},
                "attempts": {"type": "integer"}
            }
        },
        "services.VerifyResult": {
            "type": "object",
            "properties": {
                "found": {"type": "boolean"},
                "record": {"$ref": "#/definitions/domain.Interaction"},
                "batch_id": {"type": "string"},
                "commitment": {"type": "string"},
                "proof": {"type": "array", "items": {"$ref": "#/definitions/domain.ProofStep"}}
            }
        },
        "services.Stats": {
            "type": "object",
            "properties": {
                "total_interactions": {"type": "integer"},
                "pending_count": {"type": "integer"},
                "batch_count": {"type": "integer"},
                "avg_batch_size": {"type": "number"},
                "dropped": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Availability Core API",
	Description:      "Content-addressed storage gateway and verifiable interaction ledger.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
