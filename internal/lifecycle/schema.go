package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
)

const dateLayout = "2006-01-02"

// BuildJobJSONSchema returns the JSON-Schema (draft 2020-12 subset) for a job
// creation document.
func BuildJobJSONSchema() map[string]any {
	props := map[string]any{
		"customer":  map[string]any{"type": "string", "minLength": 1},
		"product":   map[string]any{"type": "string", "minLength": 1},
		"priority":  map[string]any{"type": "string", "enum": constants.PriorityStrings()},
		"siQty":     map[string]any{"type": "integer", "minimum": 1},
		"jobQty":    map[string]any{"type": "integer", "minimum": 1},
		"remark":    map[string]any{"type": "string"},
		"startDate": dateProp(),
		"dueDate":   dateProp(),
	}
	required := []string{"customer", "product", "siQty", "jobQty", "startDate", "dueDate"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func dateProp() map[string]any {
	return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
}

var (
	jobSchemaOnce sync.Once
	jobSchema     *jsonschema.Schema
	jobSchemaErr  error
)

func compiledJobSchema() (*jsonschema.Schema, error) {
	jobSchemaOnce.Do(func() {
		b, err := json.Marshal(BuildJobJSONSchema())
		if err != nil {
			jobSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("job.json", bytes.NewReader(b)); err != nil {
			jobSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		jobSchema, jobSchemaErr = compiler.Compile("job.json")
	})
	return jobSchema, jobSchemaErr
}

// jobDocument mirrors the creation schema.
type jobDocument struct {
	Customer  string `json:"customer"`
	Product   string `json:"product"`
	Priority  string `json:"priority"`
	SIQty     int    `json:"siQty"`
	JobQty    int    `json:"jobQty"`
	Remark    string `json:"remark"`
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
}

// DecodeCreateRequest validates data against the job schema and converts it.
func DecodeCreateRequest(data []byte) (CreateJobRequest, error) {
	schema, err := compiledJobSchema()
	if err != nil {
		return CreateJobRequest{}, fmt.Errorf("compile job schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return CreateJobRequest{}, common.NewValidationError(fmt.Sprintf("job document is not valid JSON: %v", err))
	}
	if err := schema.Validate(v); err != nil {
		return CreateJobRequest{}, common.NewValidationError(fmt.Sprintf("job document does not match schema: %v", err))
	}

	var doc jobDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return CreateJobRequest{}, common.NewValidationError(err.Error())
	}
	start, err := time.ParseInLocation(dateLayout, doc.StartDate, time.UTC)
	if err != nil {
		return CreateJobRequest{}, common.NewValidationError(fmt.Sprintf("startDate invalid (YYYY-MM-DD): %v", err))
	}
	due, err := time.ParseInLocation(dateLayout, doc.DueDate, time.UTC)
	if err != nil {
		return CreateJobRequest{}, common.NewValidationError(fmt.Sprintf("dueDate invalid (YYYY-MM-DD): %v", err))
	}
	return CreateJobRequest{
		Customer:  doc.Customer,
		Product:   doc.Product,
		Priority:  constants.Priority(doc.Priority),
		SIQty:     doc.SIQty,
		JobQty:    doc.JobQty,
		Remark:    doc.Remark,
		StartDate: start,
		DueDate:   due,
	}, nil
}
