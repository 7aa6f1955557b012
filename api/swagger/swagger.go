package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ClassTrack API",
        "description": "Timetables, substitutions and attendance for schools",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Sessions and tokens"},
        {"name": "Catalog", "description": "Departments, batches and subjects"},
        {"name": "Roster", "description": "Students, teachers and subject assignments"},
        {"name": "Timetable", "description": "Weekly schedule templates"},
        {"name": "Substitutions", "description": "Date-scoped teacher cover"},
        {"name": "Attendance", "description": "The per-class attendance ledger"},
        {"name": "Reports", "description": "Computed attendance summaries"},
        {"name": "Exports", "description": "Asynchronous CSV and PDF exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a user",
                "responses": {
                    "200": {"description": "Tokens issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/batches/{id}/timetable/{day}": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Get one batch day",
                "responses": {
                    "200": {"description": "Ordered slots"},
                    "404": {"description": "No classes that day"}
                }
            },
            "put": {
                "tags": ["Timetable"],
                "summary": "Replace one batch day",
                "responses": {
                    "200": {"description": "Saved"},
                    "400": {"description": "Invalid slot"}
                }
            }
        },
        "/timetable/import": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Import a weekly timetable by batch name",
                "responses": {
                    "200": {"description": "Per-day summary"}
                }
            }
        },
        "/substitutions": {
            "post": {
                "tags": ["Substitutions"],
                "summary": "Request cover for one dated slot",
                "responses": {
                    "201": {"description": "Pending request"},
                    "409": {"description": "Slot already covered or substitute busy"}
                }
            }
        },
        "/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark one class",
                "responses": {
                    "201": {"description": "Record written"},
                    "409": {"description": "Already marked"},
                    "422": {"description": "Past date"}
                }
            }
        },
        "/batches/{id}/reports/matrix": {
            "get": {
                "tags": ["Reports"],
                "summary": "Batch cross-tab of students against subjects",
                "responses": {
                    "200": {"description": "Matrix"}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a CSV or PDF export",
                "responses": {
                    "202": {"description": "Job queued"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
