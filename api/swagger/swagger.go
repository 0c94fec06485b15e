package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Enrollment Sync API",
        "description": "Course enrollment replicated across multi-leader PostgreSQL databases",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Courses", "description": "Course catalog replicated on every leader"},
        {"name": "Enrollments", "description": "Enrollment queue with capacity reconciliation"},
        {"name": "Leaders", "description": "Per-leader connectivity and stored state"},
        {"name": "Reports", "description": "Consolidated enrollment exports"},
        {"name": "Heal", "description": "Bidirectional last-writer-wins reconciliation"},
        {"name": "Metrics", "description": "Operational counters"}
    ],
    "paths": {
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List active courses",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "No leader reachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Add a course on every leader",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Stored on every leader", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Stored on some leaders", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{name}": {
            "delete": {
                "tags": ["Courses"],
                "summary": "Remove a course and all of its enrollments",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "leader", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Removed everywhere", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Removed on some leaders", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{name}/queue": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Global queue of a course",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "leader", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled and propagated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Enrolled with lagging leaders", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Student already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Remove a student's enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "200": {"description": "Removed and propagated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Removed with lagging leaders", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active enrollment", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaders": {
            "get": {
                "tags": ["Leaders"],
                "summary": "Check connectivity to every leader",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaders/{id}/state": {
            "get": {
                "tags": ["Leaders"],
                "summary": "Courses and queues stored on one leader",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown leader", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Leader unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaders/{id}/enrollments": {
            "get": {
                "tags": ["Leaders"],
                "summary": "Active enrollments stored on one leader",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/consolidated": {
            "get": {
                "tags": ["Reports"],
                "summary": "Consolidated enrollment report",
                "produces": ["application/json", "text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/heal": {
            "post": {
                "tags": ["Heal"],
                "summary": "Heal the local leader against every other leader",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "async", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "Heal completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Heal scheduled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Heal already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/heal/last": {
            "get": {
                "tags": ["Heal"],
                "summary": "Report of the most recent heal pass",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No heal has run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Aggregated request, cache and replication counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AddCourseRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "capacity": {"type": "integer", "minimum": 1},
                "leader": {"type": "string"}
            },
            "required": ["name", "capacity"]
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "student": {"type": "string"},
                "course": {"type": "string"},
                "leader": {"type": "string"}
            },
            "required": ["student", "course"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "outcome": {"type": "string", "enum": ["SUCCESS", "PARTIAL", "FAILED"]},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
