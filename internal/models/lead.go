package models

// Lead — сделка amoCRM (API v4). Локально не хранится, каждый запуск перечитывает её заново.
type Lead struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	Price              *float64           `json:"price"`
	ResponsibleUserID  int64              `json:"responsible_user_id,omitempty"`
	StatusID           int64              `json:"status_id"`
	PipelineID         int64              `json:"pipeline_id"`
	CreatedAt          int64              `json:"created_at,omitempty"`
	UpdatedAt          int64              `json:"updated_at,omitempty"`
	CustomFieldsValues []CustomFieldValue `json:"custom_fields_values"`
	Embedded           *LeadEmbedded      `json:"_embedded,omitempty"`
}

type LeadEmbedded struct {
	Contacts []LeadContact `json:"contacts,omitempty"`
}

type LeadContact struct {
	ID     int64 `json:"id"`
	IsMain bool  `json:"is_main"`
}

// CustomFieldValue — значение кастомного поля сделки.
type CustomFieldValue struct {
	FieldID   int64              `json:"field_id"`
	FieldName string             `json:"field_name,omitempty"`
	FieldCode string             `json:"field_code,omitempty"`
	FieldType string             `json:"field_type,omitempty"`
	Values    []CustomFieldEntry `json:"values"`
}

// CustomFieldEntry.Value приходит строкой, числом или bool в зависимости от типа поля.
type CustomFieldEntry struct {
	Value    any     `json:"value"`
	EnumID   *int64  `json:"enum_id,omitempty"`
	EnumCode *string `json:"enum_code,omitempty"`
}

// Contacts returns the embedded contacts or nil.
func (l *Lead) Contacts() []LeadContact {
	if l.Embedded == nil {
		return nil
	}
	return l.Embedded.Contacts
}

// NewLead — тело запроса POST /leads.
type NewLead struct {
	Name               string             `json:"name"`
	Price              float64            `json:"price"`
	StatusID           int64              `json:"status_id"`
	PipelineID         int64              `json:"pipeline_id"`
	CustomFieldsValues []CustomFieldValue `json:"custom_fields_values,omitempty"`
	Embedded           *LeadEmbedded      `json:"_embedded,omitempty"`
}

// LeadStatusUpdate — тело запроса PATCH /leads.
type LeadStatusUpdate struct {
	ID        int64 `json:"id"`
	StatusID  int64 `json:"status_id"`
	UpdatedAt int64 `json:"updated_at"`
}
