package customfield_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/customfield"
	"github.com/onehub/llmgate/internal/entity"
)

func TestResolveModelOverridesProviderBySameName(t *testing.T) {
	provider := []entity.CustomField{{FieldName: "temperature", Value: "0.1"}}
	model := []entity.CustomField{{FieldName: "temperature", Value: "0.9"}}
	merged := customfield.Resolve(provider, model)
	if assert.Len(t, merged, 1) {
		assert.Equal(t, "0.9", merged[0].Value)
	}
}

func TestApplyBodySetsTopLevelField(t *testing.T) {
	fields := []entity.CustomField{{FieldName: "top_p", FieldPlacement: entity.PlacementBody, FieldType: entity.FieldTypeNumber, Value: "0.5"}}
	out := customfield.Apply(fields, []byte(`{}`), url.Values{}, http.Header{})
	assert.JSONEq(t, `{"top_p":0.5}`, string(out))
}

func TestApplyBodyUnsetRemovesField(t *testing.T) {
	fields := []entity.CustomField{{FieldName: "top_p", FieldPlacement: entity.PlacementBody, FieldType: entity.FieldTypeUnset}}
	out := customfield.Apply(fields, []byte(`{"top_p":0.5,"x":1}`), url.Values{}, http.Header{})
	assert.JSONEq(t, `{"x":1}`, string(out))
}

func TestApplyBodyJSONStringInsertsSubtree(t *testing.T) {
	fields := []entity.CustomField{{FieldName: "extra", FieldPlacement: entity.PlacementBody, FieldType: entity.FieldTypeJSONString, Value: `{"a":1}`}}
	out := customfield.Apply(fields, []byte(`{}`), url.Values{}, http.Header{})
	assert.JSONEq(t, `{"extra":{"a":1}}`, string(out))
}

func TestApplyBodyDropsInvalidJSONString(t *testing.T) {
	fields := []entity.CustomField{{FieldName: "extra", FieldPlacement: entity.PlacementBody, FieldType: entity.FieldTypeJSONString, Value: `not json`}}
	out := customfield.Apply(fields, []byte(`{"a":1}`), url.Values{}, http.Header{})
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestApplyQueryAndHeader(t *testing.T) {
	fields := []entity.CustomField{
		{FieldName: "alt", FieldPlacement: entity.PlacementQuery, FieldType: entity.FieldTypeString, Value: "sse"},
		{FieldName: "X-Custom", FieldPlacement: entity.PlacementHeader, FieldType: entity.FieldTypeString, Value: "v"},
	}
	q := url.Values{}
	h := http.Header{}
	customfield.Apply(fields, []byte(`{}`), q, h)
	assert.Equal(t, "sse", q.Get("alt"))
	assert.Equal(t, "v", h.Get("X-Custom"))
}

func TestApplyQueryUnsetRemoves(t *testing.T) {
	fields := []entity.CustomField{{FieldName: "alt", FieldPlacement: entity.PlacementQuery, FieldType: entity.FieldTypeUnset}}
	q := url.Values{"alt": []string{"sse"}}
	customfield.Apply(fields, []byte(`{}`), q, http.Header{})
	assert.Empty(t, q.Get("alt"))
}
