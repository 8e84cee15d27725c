// Package swagger registers the lending API description served under /swagger.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/transactions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "List borrow requests",
                "parameters": [
                    {"type": "string", "description": "canonical or legacy status", "name": "status", "in": "query"},
                    {"type": "string", "name": "clubId", "in": "query"},
                    {"type": "string", "name": "studentId", "in": "query"},
                    {"type": "string", "name": "inventoryId", "in": "query"},
                    {"type": "string", "name": "ownerClubId", "in": "query"},
                    {"type": "string", "name": "departmentId", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Transaction"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Submit a borrow request",
                "parameters": [
                    {"description": "request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.SubmitRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Transaction"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}}
                }
            }
        },
        "/transactions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Get a borrow request with its department relay",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.TransactionDetails"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Amend message or due date",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"description": "amendment", "name": "amendment", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.Amendment"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Transaction"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}}
                }
            }
        },
        "/transactions/{id}/decision": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Approve or reject",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"description": "decision", "name": "decision", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Transaction"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}},
                    "423": {"description": "Locked", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}}
                }
            }
        },
        "/transactions/{id}/collect": {
            "post": {
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Mark an approved request as collected",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Transaction"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errs.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "errs.ErrorResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}, "code": {"type": "string"}}
        },
        "model.SubmitRequest": {
            "type": "object",
            "required": ["inventoryId", "quantity"],
            "properties": {
                "inventoryId": {"type": "string"},
                "quantity": {"type": "integer"},
                "dueDate": {"type": "string", "format": "date-time"},
                "message": {"type": "string"}
            }
        },
        "model.DecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {"decision": {"type": "string", "enum": ["approve", "reject"]}}
        },
        "model.Amendment": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "dueDate": {"type": "string", "format": "date-time"}
            }
        },
        "model.Transaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "studentId": {"type": "string"},
                "clubId": {"type": "string"},
                "inventoryId": {"type": "string"},
                "quantity": {"type": "integer"},
                "dateOfIssue": {"type": "string", "format": "date-time"},
                "dueDate": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["PROCESSING", "DEPARTMENT_PENDING", "DEPARTMENT_APPROVED", "CLUB_APPROVED", "COLLECTED", "OVERDUE", "REJECTED"]},
                "message": {"type": "string"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "model.DepartmentRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "deptId": {"type": "string"},
                "usn": {"type": "string"},
                "transactionId": {"type": "string"},
                "decision": {"type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]},
                "decidedBy": {"type": "string"},
                "decidedAt": {"type": "string", "format": "date-time"}
            }
        },
        "model.TransactionDetails": {
            "allOf": [
                {"$ref": "#/definitions/model.Transaction"},
                {"type": "object", "properties": {"departmentRequest": {"$ref": "#/definitions/model.DepartmentRequest"}}}
            ]
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Club lending API",
	Description:      "Borrow requests for club inventory with department relay and club approval.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
