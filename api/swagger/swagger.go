package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "JWT Auth API",
        "description": "Credential and session lifecycle service",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, refresh tokens, revocation, recovery"}
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
        "/api/v1/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a new account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/api/v1/auth/token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate and issue tokens",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TokenRequest"}},
                    {"name": "X-Device-Info", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AuthenticationResult"}}
                }
            }
        },
        "/api/v1/auth/refresh-token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RevokeTokenRequest"}},
                    {"name": "X-Device-Info", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AuthenticationResult"}}
                }
            }
        },
        "/api/v1/auth/revoke-token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke a single refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RevokeTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "Revoked"},
                    "404": {"description": "Token not found"}
                }
            }
        },
        "/api/v1/auth/revoke-token-all": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke every active token for the owner",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RevokeTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "Revoked"},
                    "404": {"description": "Token not found"}
                }
            }
        },
        "/api/v1/auth/add-role": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Assign a role to a user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddRoleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/auth/change-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Change password and revoke all sessions",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/auth/forgot-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Issue a one-time recovery code",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/auth/verify-code": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Verify the code and reset the password",
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Code mismatch"}
                }
            }
        },
        "/api/v1/auth/sessions": {
            "get": {
                "tags": ["Authentication"],
                "summary": "List the caller's refresh tokens",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "TokenRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"}
            }
        },
        "AddRoleRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "RevokeTokenRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string"}
            }
        },
        "AuthenticationResult": {
            "type": "object",
            "properties": {
                "authenticated": {"type": "boolean"},
                "message": {"type": "string"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "roles": {"type": "array", "items": {"type": "string"}},
                "token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "refresh_token_expires_at": {"type": "string"},
                "device_id": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"type": "object"},
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
