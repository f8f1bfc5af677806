// Package smoketest invokes a deployed Edge Function and checks its JSON
// response for the diagnostic field the current deployment must expose.
package smoketest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"docuflow/internal/console"
	"docuflow/internal/platform"
)

// DefaultField is the diagnostic key expected on the first account result.
const DefaultField = "errorDetails"

var (
	ErrFieldMissing = errors.New("expected field not present in response")
	ErrMalformed    = errors.New("response is not the expected JSON object")
)

// Invoker calls an Edge Function.
type Invoker interface {
	InvokeFunction(ctx context.Context, name string, body any) (*platform.FunctionResponse, error)
}

// Response is the part of the process-emails payload the check reads.
// Only the top level must be an object; the rest is decoded leniently.
type Response struct {
	Errors         json.RawMessage `json:"errors"`
	AccountResults json.RawMessage `json:"account_results"`
}

// Report summarises one inspection. Errors is set when the errors count is a
// whole number; ErrorsRaw keeps whatever the function sent.
type Report struct {
	Status       int
	Errors       int
	HasErrors    bool
	ErrorsRaw    string
	Accounts     int
	Field        string
	FieldPresent bool
	FieldValue   json.RawMessage
}

// Inspect parses body and reports whether account_results[0] contains field.
// Only a body that is not a JSON object is an error.
func Inspect(body []byte, field string) (*Report, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r := &Report{Field: field}

	if present(resp.Errors) {
		r.ErrorsRaw = string(resp.Errors)
		r.Errors, r.HasErrors = count(resp.Errors)
	}

	var accounts []json.RawMessage
	if present(resp.AccountResults) && json.Unmarshal(resp.AccountResults, &accounts) == nil {
		r.Accounts = len(accounts)
	}
	if len(accounts) > 0 {
		var first map[string]json.RawMessage
		if json.Unmarshal(accounts[0], &first) == nil {
			if v, ok := first[field]; ok {
				r.FieldPresent = true
				r.FieldValue = v
			}
		}
	}
	return r, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// count accepts 3 and 3.0; anything else is not a count.
func count(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Checker runs the smoke test.
type Checker struct {
	invoker Invoker
	printer *console.Printer
	logger  *zap.Logger
	field   string
}

// NewChecker builds a Checker looking for field (DefaultField when empty).
func NewChecker(invoker Invoker, printer *console.Printer, logger *zap.Logger, field string) *Checker {
	if field == "" {
		field = DefaultField
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{invoker: invoker, printer: printer, logger: logger.With(zap.String("component", "smoketest")), field: field}
}

// Run invokes function with an empty JSON body and inspects the response.
// It returns ErrFieldMissing (with the report) when the field is absent.
func (c *Checker) Run(ctx context.Context, function, url string) (*Report, error) {
	c.printer.Step("POST %s", url)
	resp, err := c.invoker.InvokeFunction(ctx, function, nil)
	if err != nil {
		if resp != nil {
			c.printBody(resp.Body)
		}
		c.printer.Fail("Request failed: %v", err)
		return nil, fmt.Errorf("invoke %s: %w", function, err)
	}
	c.printer.OK("HTTP %d", resp.Status)
	c.printBody(resp.Body)

	report, err := Inspect(resp.Body, c.field)
	if err != nil {
		c.printer.Fail("Could not parse response: %v", err)
		return nil, err
	}
	report.Status = resp.Status

	log := c.logger.With(
		zap.String("function", function),
		zap.Int("status", resp.Status),
		zap.Int("accounts", report.Accounts),
		zap.Int("errors", report.Errors),
		zap.Bool("field_present", report.FieldPresent),
	)

	switch {
	case report.HasErrors:
		c.printer.Line("Errors reported: %d", report.Errors)
	case report.ErrorsRaw != "":
		c.printer.Warn("Errors reported (not a count): %s", report.ErrorsRaw)
	default:
		c.printer.Warn("Response has no top-level errors count")
	}
	c.printer.Line("Account results: %d", report.Accounts)

	if !report.FieldPresent {
		if report.Accounts == 0 {
			c.printer.Fail("FAIL: no account results to inspect for %q", c.field)
		} else {
			c.printer.Fail("FAIL: account_results[0] has no %q field; the deployed function may be outdated", c.field)
		}
		log.Warn("smoke_test_failed")
		return report, fmt.Errorf("%w: account_results[0].%s", ErrFieldMissing, c.field)
	}

	c.printer.OK("PASS: account_results[0].%s is present", c.field)
	c.printer.Block(c.field, indent(report.FieldValue))
	log.Info("smoke_test_passed")
	return report, nil
}

func (c *Checker) printBody(body []byte) {
	if len(body) == 0 {
		return
	}
	c.printer.Block("response", indent(body))
}

func indent(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
