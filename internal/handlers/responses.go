// Package handlers implements the MCP tool dispatcher: argument parsing
// and validation, routing to services, and the uniform response envelope.
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ternarybob/trellis/internal/models"
)

var validate = validator.New()

// successEnvelope is the single-result success shape.
type successEnvelope struct {
	Ok      bool   `json:"ok"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// failureEnvelope always carries an explicit null data field.
type failureEnvelope struct {
	Ok    bool              `json:"ok"`
	Error *models.ToolError `json:"error"`
	Data  any               `json:"data"`
}

type batchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// batchItemResult is one element's outcome in a batch response.
type batchItemResult struct {
	Ok    bool              `json:"ok"`
	Data  any               `json:"data,omitempty"`
	Error *models.ToolError `json:"error,omitempty"`
}

// batchEnvelope reports per-element outcomes in input order.
type batchEnvelope struct {
	Ok      bool              `json:"ok"`
	Summary batchSummary      `json:"summary"`
	Results []batchItemResult `json:"results"`
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf(
			`{"ok":false,"error":{"code":"InternalError","message":%q},"data":null}`, err.Error()))
	}
	return mcp.NewToolResultText(string(data))
}

func successResult(data any, message string) *mcp.CallToolResult {
	return jsonResult(successEnvelope{Ok: true, Data: data, Message: message})
}

func failureResult(err error) *mcp.CallToolResult {
	return jsonResult(failureEnvelope{Ok: false, Error: models.AsToolError(err)})
}

func batchResult(results []batchItemResult) *mcp.CallToolResult {
	summary := batchSummary{Total: len(results)}
	for _, r := range results {
		if r.Ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return jsonResult(batchEnvelope{Ok: true, Summary: summary, Results: results})
}

func okItem(data any) batchItemResult {
	return batchItemResult{Ok: true, Data: data}
}

func failedItem(err error) batchItemResult {
	return batchItemResult{Ok: false, Error: models.AsToolError(err)}
}

// bindArguments decodes the tool payload into args and applies struct
// validation. Errors are ValidationError; nothing downstream sees them.
func bindArguments(request mcp.CallToolRequest, args any) error {
	if err := request.BindArguments(args); err != nil {
		return models.NewValidationError("invalid arguments: %v", err)
	}
	if err := validate.Struct(args); err != nil {
		return models.NewValidationError("invalid arguments: %v", err)
	}
	return nil
}
