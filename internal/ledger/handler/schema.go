package handler

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	dErrors "attesto/pkg/domain-errors"
)

// The mint body is schema-checked before any field reaches the domain layer.
// Issuer-facing integrations generate clients from this document, so the
// schema, not the Go struct, is the contract.
//
//go:embed mint_schema.json
var mintSchemaJSON string

var mintSchema = mustCompileSchema(mintSchemaJSON)

func mustCompileSchema(doc string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("mint request schema does not compile: %v", err))
	}
	return schema
}

// validateMintBody checks the raw body against the mint schema and folds all
// violations into one validation error.
func validateMintBody(body []byte) error {
	result, err := mintSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}
		return dErrors.New(dErrors.CodeValidation, strings.Join(violations, "; "))
	}
	return nil
}
