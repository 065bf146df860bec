package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemasCompile(t *testing.T) {
	for _, name := range []string{envelopeSchema, dataSchemas["findOrders"], dataSchemas["getOrder"]} {
		t.Run(name, func(t *testing.T) {
			_, err := load(name)
			require.NoError(t, err)
		})
	}
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		body    string
		wantErr bool
	}{
		{
			name:   "find orders with numeric and string ids",
			method: "findOrders",
			body:   `{"meta":{"method":"findOrders"},"errors":[],"data":{"orders":[{"id":1},{"id":"2","type":"adFox"}]}}`,
		},
		{
			name:   "find orders empty batch",
			method: "findOrders",
			body:   `{"meta":{"method":"findOrders"},"errors":[],"data":{"orders":[]}}`,
		},
		{
			name:    "find orders without orders",
			method:  "findOrders",
			body:    `{"meta":{"method":"findOrders"},"errors":[],"data":{}}`,
			wantErr: true,
		},
		{
			name:    "find orders entry without id",
			method:  "findOrders",
			body:    `{"meta":{"method":"findOrders"},"errors":[],"data":{"orders":[{"type":"x"}]}}`,
			wantErr: true,
		},
		{
			name:   "errors skip data check",
			method: "findOrders",
			body:   `{"meta":{"method":"findOrders"},"errors":[{"title":"Unauthorized user"}],"data":null}`,
		},
		{
			name:   "get order",
			method: "getOrder",
			body:   `{"meta":{"method":"getOrder"},"errors":[],"data":{"order":{"receivd":"2024-03-01 12:00:00","subjects":"Math","aim":"exam","name":"Ivan"}}}`,
		},
		{
			name:    "get order bad timestamp",
			method:  "getOrder",
			body:    `{"meta":{"method":"getOrder"},"errors":[],"data":{"order":{"receivd":"yesterday"}}}`,
			wantErr: true,
		},
		{
			name:    "get order missing data",
			method:  "getOrder",
			body:    `{"meta":{"method":"getOrder"},"errors":[]}`,
			wantErr: true,
		},
		{
			name:    "missing meta",
			method:  "getOrder",
			body:    `{"errors":[]}`,
			wantErr: true,
		},
		{
			name:   "unknown method checks envelope only",
			method: "getProfile",
			body:   `{"meta":{"method":"getProfile"},"data":42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope(tt.method, []byte(tt.body))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "error should be ValidationError type")
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateEnvelope_MalformedJSON(t *testing.T) {
	err := ValidateEnvelope("findOrders", []byte("{ invalid json }"))
	require.Error(t, err)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Schema: "get_order.schema.json",
		Errors: []FieldError{{Field: "order.receivd", Message: "Does not match pattern"}},
	}
	assert.Contains(t, err.Error(), "get_order.schema.json validation failed")
	assert.Contains(t, err.Error(), "1. order.receivd: Does not match pattern")
}

func TestHasSchema(t *testing.T) {
	assert.True(t, HasSchema("findOrders"))
	assert.True(t, HasSchema("getOrder"))
	assert.False(t, HasSchema("getProfile"))
}
