// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-field error response
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Detail: message})
}

// WriteFieldErrors writes a 400 response mapping each offending field to its
// messages, e.g. {"purpose": ["\"x\" is not a valid choice."]}
func WriteFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	_ = WriteJSON(w, http.StatusBadRequest, fields)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401) with the challenge
// scheme clients should answer with
func WriteUnauthorized(w http.ResponseWriter, scheme, message string) {
	if scheme != "" {
		w.Header().Set("WWW-Authenticate", scheme)
	}
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusNotFound, "Not found.")
}

// WriteMethodNotAllowed writes a method not allowed error (405)
func WriteMethodNotAllowed(w http.ResponseWriter, method string) {
	WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method \""+method+"\" not allowed.")
}

// WriteInternalError writes an internal server error (500). The cause is
// not exposed to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "A server error occurred.")
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
