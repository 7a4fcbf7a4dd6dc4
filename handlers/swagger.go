package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>prompt-request API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "prompt-request", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "apiKey": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": { "type": "string" }, "message": { "type": "string" } } },
      "Created": { "type": "object", "properties": { "uuid": { "type": "string", "format": "uuid" }, "rev": { "type": "integer" }, "content_type": { "type": "string" }, "size_bytes": { "type": "integer" }, "sha256": { "type": "string" }, "created_at": { "type": "string", "format": "date-time" } } },
      "Summary": { "type": "object", "properties": { "uuid": { "type": "string", "format": "uuid" }, "created_at": { "type": "string", "format": "date-time" }, "updated_at": { "type": "string", "format": "date-time" }, "latest_rev": { "type": "integer" }, "latest_content_type": { "type": "string" } } },
      "Revision": { "type": "object", "properties": { "rev": { "type": "integer" }, "created_at": { "type": "string", "format": "date-time" }, "content_type": { "type": "string" }, "size_bytes": { "type": "integer" }, "sha256": { "type": "string" } } }
    }
  },
  "paths": {
    "/api/accounts": {
      "post": { "summary": "Create an account and return its API key once", "responses": { "201": { "description": "api_key returned" }, "429": { "description": "one account per IP per hour" } } }
    },
    "/api/requests": {
      "post": {
        "summary": "Upload a new request (revision 1)",
        "security": [ { "apiKey": [] } ],
        "requestBody": { "content": { "text/markdown": {}, "application/x-ndjson": {} } },
        "responses": { "201": { "description": "created", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Created" } } } }, "400": { "description": "unsupported content type" }, "413": { "description": "body over 1 MiB" } }
      },
      "get": {
        "summary": "List own requests, newest first",
        "security": [ { "apiKey": [] } ],
        "parameters": [ { "name": "limit", "in": "query", "schema": { "type": "integer", "default": 50, "maximum": 100 } }, { "name": "offset", "in": "query", "schema": { "type": "integer", "default": 0 } } ],
        "responses": { "200": { "description": "list", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/Summary" } } } } } }
      }
    },
    "/api/requests/{uuid}": {
      "put": { "summary": "Upload a new revision", "security": [ { "apiKey": [] } ], "responses": { "201": { "description": "created" }, "404": { "description": "unknown or not owned" } } },
      "delete": { "summary": "Delete one revision (?rev=N) or the whole request", "security": [ { "apiKey": [] } ], "responses": { "204": { "description": "deleted" }, "404": { "description": "unknown or not owned" } } }
    },
    "/api/requests/{uuid}/revisions": {
      "get": { "summary": "List revisions, newest first", "security": [ { "apiKey": [] } ], "responses": { "200": { "description": "list" } } }
    },
    "/api/requests/{uuid}/revisions/{rev}": {
      "get": { "summary": "Get revision metadata", "security": [ { "apiKey": [] } ], "responses": { "200": { "description": "revision", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Revision" } } } } } }
    },
    "/{uuid}": {
      "get": { "summary": "Read the latest or a pinned (?rev=N) revision", "responses": { "200": { "description": "raw content" }, "404": { "description": "not found" }, "429": { "description": "rate limited" } } }
    },
    "/": { "get": { "summary": "Front page (markdown)", "responses": { "200": { "description": "markdown" } } } },
    "/healthz": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "ok" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
