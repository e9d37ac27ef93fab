// Package record turns raw list-view records into board appointments.
package record

import (
	"bytes"
	"encoding/json"
)

// FieldName is one of the consult request fields the board reads.
type FieldName string

const (
	FieldRecordName     FieldName = "Name"
	FieldCallbackPref   FieldName = "Consult_Callback_Preference__c"
	FieldModality       FieldName = "Modality__c"
	FieldConsultant     FieldName = "Consultant_lwc__c"
	FieldPCPFullName    FieldName = "PCP_Full_Name__c"
	FieldCallbackNumber FieldName = "Callback_Telephone_Number__c"
	FieldCallbackTime   FieldName = "Callback_time__c"
	FieldCreatedDate    FieldName = "CreatedDate"
)

// KnownFields lists every field the normalizer consumes, in the order they are
// requested from the store.
var KnownFields = []FieldName{
	FieldRecordName,
	FieldCallbackPref,
	FieldModality,
	FieldConsultant,
	FieldPCPFullName,
	FieldCallbackNumber,
	FieldCallbackTime,
	FieldCreatedDate,
}

// FieldValue is the store's per-field wrapper. Either part may be absent.
type FieldValue struct {
	DisplayValue *string
	Value        *string
}

// UnmarshalJSON accepts the store's {"displayValue": ..., "value": ...} shape.
// Scalar raw values (numbers, booleans) keep their JSON text; nested objects
// and arrays are treated as absent.
func (f *FieldValue) UnmarshalJSON(data []byte) error {
	var wire struct {
		DisplayValue *string         `json:"displayValue"`
		Value        json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	f.DisplayValue = wire.DisplayValue
	f.Value = scalarText(wire.Value)
	return nil
}

// MarshalJSON writes the same shape UnmarshalJSON reads.
func (f FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DisplayValue *string `json:"displayValue"`
		Value        *string `json:"value"`
	}{f.DisplayValue, f.Value})
}

func scalarText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	case '{', '[':
		return nil
	default:
		s := string(raw)
		return &s
	}
}

// RawRecord is one unprocessed record from a list-view page. Fields may be nil.
type RawRecord struct {
	ID     string                    `json:"id"`
	Fields map[FieldName]*FieldValue `json:"fields"`
}

// Field returns the wrapper for name, or nil when the record does not carry it.
func (r RawRecord) Field(name FieldName) *FieldValue {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}
