package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Mastery Engine",
        "description": "Adaptive mastery and assessment engine",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Practice", "description": "Daily practice sessions and attempts"},
        {"name": "Strength", "description": "Accuracy-based strong/weak classification"},
        {"name": "WeeklyTests", "description": "Strength-balanced weekly tests"},
        {"name": "LessonEvaluations", "description": "Lesson evaluations and combined mastery"},
        {"name": "Recommendations", "description": "Adaptive follow-up recommendations"}
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
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/api/v1/practice/sessions": {
            "get": {
                "tags": ["Practice"],
                "summary": "List practice sessions",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Practice"],
                "summary": "Create a practice session for a schedule slot",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already occupied"}
                }
            }
        },
        "/api/v1/practice/sessions/{id}": {
            "get": {
                "tags": ["Practice"],
                "summary": "Get a practice session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/api/v1/practice/sessions/{id}/questions": {
            "get": {
                "tags": ["Practice"],
                "summary": "Serve questions for a student's practice run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "student_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/practice/sessions/{id}/participation": {
            "post": {
                "tags": ["Practice"],
                "summary": "Record per-student participation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/practice/sessions/{id}/close": {
            "post": {
                "tags": ["Practice"],
                "summary": "Close an active session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Closed"}
                }
            }
        },
        "/api/v1/practice/attempts": {
            "post": {
                "tags": ["Practice"],
                "summary": "Grade and record one answer",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/practice/students/{studentId}/topics/{topicId}/mastery": {
            "get": {
                "tags": ["Practice"],
                "summary": "Get a student's mastery on one topic",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "topicId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/strength/classify": {
            "post": {
                "tags": ["Strength"],
                "summary": "Bucket a class's questions into strong, moderate and weak pools",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/strength/refresh": {
            "post": {
                "tags": ["Strength"],
                "summary": "Queue a background pool re-warm",
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/api/v1/strength/students/{studentId}/topics/{topicId}": {
            "get": {
                "tags": ["Strength"],
                "summary": "Get one student's strong and weak question pools",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "topicId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/weekly-tests": {
            "get": {
                "tags": ["WeeklyTests"],
                "summary": "List weekly tests",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["WeeklyTests"],
                "summary": "Create a weekly test shell",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/weekly-tests/{id}/paper": {
            "get": {
                "tags": ["WeeklyTests"],
                "summary": "Get the generated paper",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["WeeklyTests"],
                "summary": "Generate a strength-balanced paper",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/weekly-tests/{id}/paper.pdf": {
            "get": {
                "tags": ["WeeklyTests"],
                "summary": "Download the paper as a printable PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF bytes"}
                }
            }
        },
        "/api/v1/weekly-tests/{id}/scores.csv": {
            "get": {
                "tags": ["WeeklyTests"],
                "summary": "Download the blank score sheet as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV bytes"}
                }
            }
        },
        "/api/v1/weekly-tests/{id}/conduct": {
            "post": {
                "tags": ["WeeklyTests"],
                "summary": "Mark a weekly test as conducted",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Conducted"}
                }
            }
        },
        "/api/v1/weekly-tests/{id}/results": {
            "post": {
                "tags": ["WeeklyTests"],
                "summary": "Submit one manually marked result",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate result"}
                }
            }
        },
        "/api/v1/weekly-tests/{id}/results/bulk": {
            "post": {
                "tags": ["WeeklyTests"],
                "summary": "Submit a whole class's results in one call",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/lesson-evaluations": {
            "get": {
                "tags": ["LessonEvaluations"],
                "summary": "List lesson evaluations",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["LessonEvaluations"],
                "summary": "Create a lesson evaluation shell",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/lesson-evaluations/{id}/results": {
            "post": {
                "tags": ["LessonEvaluations"],
                "summary": "Submit one student's evaluation result",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/lesson-evaluations/{id}/combined-mastery": {
            "post": {
                "tags": ["LessonEvaluations"],
                "summary": "Recompute a student's combined chapter mastery",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/recommendations": {
            "get": {
                "tags": ["Recommendations"],
                "summary": "List adaptive recommendations",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "actioned", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/recommendations/{id}/action": {
            "post": {
                "tags": ["Recommendations"],
                "summary": "Mark a recommendation as actioned",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
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
                "total_items": {"type": "integer"},
                "total_pages": {"type": "integer"}
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
