package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
)

// validateSemantic validates the document against the exported JSON Schema.
func validateSemantic(doc *schema.Document) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "marshal for schema validation: %v", err)}
	}

	schemaJSON, err := schema.GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "generate schema: %v", err)}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal schema: %v", err)}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("loadout-v0.json", schemaDoc); err != nil {
		return []*ValidationError{errorf("semantic", "", "add schema resource: %v", err)}
	}
	sch, err := c.Compile("loadout-v0.json")
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "compile schema: %v", err)}
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal document: %v", err)}
	}

	var errs []*ValidationError
	if err := sch.Validate(instance); err != nil {
		var ve *sjsonschema.ValidationError
		if errors.As(err, &ve) {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, errorf("semantic", strings.Join(cause.InstanceLocation, "."), "%v", cause.ErrorKind))
			}
		} else {
			errs = append(errs, errorf("semantic", "", "%v", err))
		}
	}

	if doc.Meta.Name == "" {
		errs = append(errs, errorf("semantic", "meta.name", "meta.name is required"))
	}
	if len(doc.Layers) == 0 {
		errs = append(errs, errorf("semantic", "layers", "at least one layer is required"))
	}
	for i, l := range doc.Layers {
		if l.Name == "" {
			errs = append(errs, errorf("semantic", layerPath(i)+".name", "layer name is required"))
		}
	}
	return errs
}

// flattenValidationErrors collects the leaf causes of a validation error.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func layerPath(i int) string {
	return fmt.Sprintf("layers[%d]", i)
}
