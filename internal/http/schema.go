package httpx

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/splax/taskboard/internal/domain"
)

const maxBodyBytes = 1 << 20

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://taskboard.local/schemas/"

// requestSchemas holds the compiled request body schemas.
type requestSchemas struct {
	credentials *jsonschema.Schema
	taskCreate  *jsonschema.Schema
	taskUpdate  *jsonschema.Schema
}

func compileSchemas() (requestSchemas, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return requestSchemas{}, err
	}
	for _, entry := range entries {
		data, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return requestSchemas{}, err
		}
		if err := compiler.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(data)); err != nil {
			return requestSchemas{}, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}
	var out requestSchemas
	for name, dst := range map[string]**jsonschema.Schema{
		"credentials.json": &out.credentials,
		"task_create.json": &out.taskCreate,
		"task_update.json": &out.taskUpdate,
	} {
		schema, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return requestSchemas{}, fmt.Errorf("compile schema %s: %w", name, err)
		}
		*dst = schema
	}
	return out, nil
}

// decodeBody reads a JSON body, validates it against schema and decodes it into dst.
func decodeBody(w http.ResponseWriter, req *http.Request, schema *jsonschema.Schema, dst any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		return domain.NewValidationError("", "request body too large or unreadable")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.NewValidationError("", "invalid JSON body")
	}
	if err := schema.Validate(doc); err != nil {
		return schemaError(err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.NewValidationError("", "invalid JSON body")
	}
	return nil
}

// schemaError reports the first leaf failure of a schema validation.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return domain.NewValidationError("", err.Error())
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return domain.NewValidationError(pointerField(ve.InstanceLocation), ve.Message)
}

func pointerField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	return strings.ReplaceAll(ptr, "/", ".")
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// taskPayload accepts both the current field names and the legacy taskName/dueDate.
type taskPayload struct {
	Title       *string `json:"title"`
	TaskName    *string `json:"taskName"`
	Description *string `json:"description"`
	DueAt       *string `json:"dueAt"`
	DueDate     *string `json:"dueDate"`
}

func (p taskPayload) title() *string {
	if p.Title != nil {
		return p.Title
	}
	return p.TaskName
}

func (p taskPayload) dueAt() (*time.Time, error) {
	raw := p.DueAt
	if raw == nil {
		raw = p.DueDate
	}
	if raw == nil {
		return nil, nil
	}
	parsed, err := parseTimestamp(*raw)
	if err != nil {
		return nil, domain.NewValidationError("dueAt", "must be an RFC3339 timestamp or YYYY-MM-DD date")
	}
	return &parsed, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp accepts RFC3339 and the zone-less forms produced by HTML date inputs, read as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
