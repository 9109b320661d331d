// Package rest_api surfaces the grading engine over HTTP: entity CRUD,
// reference set management, multipart file upload and run creation, with
// HTTP Basic authentication against the stored user records.
package rest_api

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type HTTPVerb int

const (
	Unknown = iota
	GET
	GET_ONE
	DELETE
	POST
	PUT
	PATCH
)

type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

var restMethods = make(map[string]RestMethod)

// RegisterMethod is a helper function for Register.
func RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	m := RestMethod{
		Verb:    verb,
		Path:    path,
		Handler: h,
	}
	return Register(m)
}

// Register your REST method using this function.
func Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := restMethods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler in REST method map exists", key)
	}
	restMethods[key] = m
	return nil
}

// ClearMethods empties the registration table. NewRouter calls it so router
// rebuilds bind fresh handlers.
func ClearMethods() {
	restMethods = make(map[string]RestMethod)
}

// RestMethods lists everything registered so far.
func RestMethods() []RestMethod {
	out := make([]RestMethod, 0, len(restMethods))
	for _, m := range restMethods {
		out = append(out, m)
	}
	return out
}
