// Package customfield applies CustomField directives to a prepared
// upstream request: model fields override provider fields
// with the same name, and BODY/QUERY/HEADER placements are each applied
// in their own way.
package customfield

import (
	"net/http"
	"net/url"

	"github.com/Laisky/zap"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/logger"
)

// Resolve merges provider and model custom fields, model taking priority
// by field_name, and returns the ordered, deduplicated set to apply.
func Resolve(providerFields, modelFields []entity.CustomField) []entity.CustomField {
	byName := make(map[string]entity.CustomField, len(providerFields)+len(modelFields))
	var order []string
	for _, f := range providerFields {
		if _, exists := byName[f.FieldName]; !exists {
			order = append(order, f.FieldName)
		}
		byName[f.FieldName] = f
	}
	for _, f := range modelFields {
		if _, exists := byName[f.FieldName]; !exists {
			order = append(order, f.FieldName)
		}
		byName[f.FieldName] = f
	}
	out := make([]entity.CustomField, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// Apply mutates body (a JSON document), query, and header in place
// according to fields, in the order given.
func Apply(fields []entity.CustomField, body []byte, query url.Values, header http.Header) []byte {
	for _, f := range fields {
		switch f.FieldPlacement {
		case entity.PlacementBody:
			body = applyBody(f, body)
		case entity.PlacementQuery:
			applyQuery(f, query)
		case entity.PlacementHeader:
			applyHeader(f, header)
		}
	}
	return body
}

func applyBody(f entity.CustomField, body []byte) []byte {
	if f.FieldType == entity.FieldTypeUnset {
		out, err := sjson.DeleteBytes(body, f.FieldName)
		if err != nil {
			logger.L.Debug("failed to unset custom field", zap.String("field", f.FieldName), zap.Error(err))
			return body
		}
		return out
	}

	if f.FieldType == entity.FieldTypeJSONString {
		if !gjson.Valid(f.Value) {
			logger.L.Debug("custom field JSON_STRING value is not valid JSON, dropping", zap.String("field", f.FieldName))
			return body
		}
		out, err := sjson.SetRawBytes(body, f.FieldName, []byte(f.Value))
		if err != nil {
			logger.L.Debug("failed to set custom field", zap.String("field", f.FieldName), zap.Error(err))
			return body
		}
		return out
	}

	out, err := sjson.SetBytes(body, f.FieldName, typedValue(f))
	if err != nil {
		logger.L.Debug("failed to set custom field", zap.String("field", f.FieldName), zap.Error(err))
		return body
	}
	return out
}

func applyQuery(f entity.CustomField, query url.Values) {
	if f.FieldType == entity.FieldTypeUnset {
		query.Del(f.FieldName)
		return
	}
	query.Set(f.FieldName, f.Value)
}

func applyHeader(f entity.CustomField, header http.Header) {
	if f.FieldType == entity.FieldTypeUnset {
		header.Del(f.FieldName)
		return
	}
	header.Set(f.FieldName, f.Value)
}

func typedValue(f entity.CustomField) any {
	switch f.FieldType {
	case entity.FieldTypeInteger:
		if gjson.Valid(f.Value) {
			return gjson.Parse(f.Value).Int()
		}
	case entity.FieldTypeNumber:
		if gjson.Valid(f.Value) {
			return gjson.Parse(f.Value).Float()
		}
	case entity.FieldTypeBoolean:
		return f.Value == "true"
	}
	return f.Value
}
