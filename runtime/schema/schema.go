// Package schema implements the Response Schema Validator (C8): at startup
// it walks a contracts tree of JSON Schema files and compiles each one; at
// runtime it validates tool payloads carrying a `(kind, schemaVersion)`
// pair against the matching compiled schema. Compilation is grounded on the
// teacher's registry/service.go validatePayloadJSONAgainstSchema, which
// uses the same santhosh-tekuri/jsonschema/v6 compiler.
package schema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ContractError is raised for a non-retryable schema validation failure.
// The invoker maps it directly to the CONTRACT_ERROR reason code.
type ContractError struct {
	Kind          string
	SchemaVersion int
	Issues        []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("schema: payload violates contract %s/v%d: %s", e.Kind, e.SchemaVersion, strings.Join(e.Issues, "; "))
}

type schemaKey struct {
	Kind          string
	SchemaVersion int
}

// Validator holds compiled schemas keyed by (kind, schemaVersion). It is
// built once at startup and is read-only thereafter.
type Validator struct {
	schemas        map[schemaKey]*jsonschema.Schema
	enforcedKinds  map[string]struct{}
}

var versionDirPattern = regexp.MustCompile(`^v(\d+)$`)

// NewValidator compiles every *.json schema file found under root. The
// schema's schemaVersion is taken from its immediate parent directory name
// (vN); its kind is taken from the filename (without extension). Each
// compiled schema is registered both under its natural alias URI (its path
// within fsys, root included) and under the (schemaVersion, kind) key used at
// validation time. Kinds in enforcedKinds fail closed (CONTRACT_ERROR) when
// absent from the compiled set; all other kinds degrade to a warning.
func NewValidator(fsys fs.FS, root string, enforcedKinds []string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	v := &Validator{
		schemas:       make(map[schemaKey]*jsonschema.Schema),
		enforcedKinds: make(map[string]struct{}, len(enforcedKinds)),
	}
	for _, k := range enforcedKinds {
		v.enforcedKinds[k] = struct{}{}
	}

	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		version, ok := extractVersion(path)
		if !ok {
			return nil // not under a vN directory: not a governed contract schema
		}
		kind := strings.TrimSuffix(filepath.Base(path), ".json")

		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read schema %q: %w", path, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("unmarshal schema %q: %w", path, err)
		}
		alias := path
		if err := compiler.AddResource(alias, doc); err != nil {
			return fmt.Errorf("add schema resource %q: %w", path, err)
		}
		compiled, err := compiler.Compile(alias)
		if err != nil {
			return fmt.Errorf("compile schema %q: %w", path, err)
		}
		v.schemas[schemaKey{Kind: kind, SchemaVersion: version}] = compiled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func extractVersion(path string) (int, bool) {
	dir := filepath.Base(filepath.Dir(path))
	m := versionDirPattern.FindStringSubmatch(dir)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// governedEnvelope is the minimal shape every governed payload must expose.
type governedEnvelope struct {
	Kind          string `json:"kind"`
	SchemaVersion *int   `json:"schemaVersion"`
}

// Validate inspects payloadJSON's top-level `kind`/`schemaVersion` fields.
// When both are present and a matching compiled schema exists, the payload
// is evaluated and any failure surfaces as *ContractError. When the schema
// is absent: if kind is in the validator's enforced set, that too is a
// *ContractError; otherwise validation is skipped (the caller should
// record a warning). Payloads lacking kind/schemaVersion entirely are not
// governed and are always skipped.
func (v *Validator) Validate(payloadJSON []byte) (skippedWarning string, err error) {
	var header governedEnvelope
	if jsonErr := json.Unmarshal(payloadJSON, &header); jsonErr != nil || header.Kind == "" || header.SchemaVersion == nil {
		return "", nil
	}
	version := *header.SchemaVersion

	key := schemaKey{Kind: header.Kind, SchemaVersion: version}
	compiled, ok := v.schemas[key]
	if !ok {
		if _, enforced := v.enforcedKinds[header.Kind]; enforced {
			return "", &ContractError{Kind: header.Kind, SchemaVersion: version, Issues: []string{"no compiled schema registered for this kind/version"}}
		}
		return fmt.Sprintf("schema: no compiled schema for %s/v%d, validation skipped", header.Kind, version), nil
	}

	var payloadDoc any
	if err := json.Unmarshal(payloadJSON, &payloadDoc); err != nil {
		return "", &ContractError{Kind: header.Kind, SchemaVersion: version, Issues: []string{"payload is not valid JSON"}}
	}
	if err := compiled.Validate(payloadDoc); err != nil {
		return "", &ContractError{Kind: header.Kind, SchemaVersion: version, Issues: flattenValidationError(err)}
	}
	return "", nil
}

// flattenValidationError reduces a (possibly deeply nested) jsonschema
// validation error tree into a short, flat list suitable for a user-visible
// CONTRACT_ERROR message.
func flattenValidationError(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, e.Error())
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
