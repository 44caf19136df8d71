package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidKey is a launch file with a missing or unknown key.
var ErrInvalidKey = fmt.Errorf("%w: key error, one of the keys provided is not valid", ErrInvalid)

const launchFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["server", "api_key", "workflow_name", "inputs"],
  "properties": {
    "server": {"type": "string", "minLength": 1},
    "api_key": {"type": "string", "minLength": 1},
    "workflow_name": {"type": "string", "minLength": 1},
    "uid": {"type": ["string", "number"]},
    "harvest": {"type": "boolean"},
    "inputs": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean"]}
    }
  }
}`

var launchSchema = gojsonschema.NewStringLoader(launchFileSchema)

// LaunchFile is the on-disk description of one launch. JSON documents are
// accepted too since they are valid YAML.
type LaunchFile struct {
	Server       string         `yaml:"server"`
	APIKey       string         `yaml:"api_key"`
	WorkflowName string         `yaml:"workflow_name"`
	Inputs       map[string]any `yaml:"inputs"`
	UID          string         `yaml:"uid"`
	Harvest      bool           `yaml:"harvest"`
}

func LoadLaunchFile(path string) (*LaunchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read launch file %s: %w", ErrInvalid, path, err)
	}

	return ParseLaunchFile(data)
}

func ParseLaunchFile(data []byte) (*LaunchFile, error) {
	var document map[string]any

	err := yaml.Unmarshal(data, &document)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse launch file: %w", ErrInvalid, err)
	}

	if document == nil {
		return nil, ErrInvalidKey
	}

	result, err := gojsonschema.Validate(launchSchema, gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if !result.Valid() {
		return nil, keyError(result.Errors())
	}

	// uid may be numeric in hand written files
	if uid, ok := document["uid"]; ok {
		document["uid"] = fmt.Sprint(uid)

		data, err = yaml.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	var file LaunchFile

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return &file, nil
}

type schemaError struct {
	details []string
}

func (e *schemaError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidKey, strings.Join(e.details, "; "))
}

func (e *schemaError) Is(target error) bool {
	return target == ErrInvalidKey || errors.Is(ErrInvalidKey, target)
}

func keyError(resultErrors []gojsonschema.ResultError) error {
	details := make([]string, 0, len(resultErrors))
	for _, resultError := range resultErrors {
		details = append(details, resultError.String())
	}

	return &schemaError{details: details}
}
