package models

import "encoding/json"

const EntityTypeLeads = "leads"

// Task — задача, привязанная к сделке.
type Task struct {
	ID                int64           `json:"id"`
	EntityID          int64           `json:"entity_id"`
	EntityType        string          `json:"entity_type"`
	TaskTypeID        int64           `json:"task_type_id"`
	Text              string          `json:"text"`
	CompleteTill      int64           `json:"complete_till"`
	ResponsibleUserID int64           `json:"responsible_user_id"`
	IsCompleted       bool            `json:"is_completed"`
	Result            json.RawMessage `json:"result,omitempty"`
}

type NewTask struct {
	EntityID          int64           `json:"entity_id"`
	EntityType        string          `json:"entity_type"`
	TaskTypeID        int64           `json:"task_type_id"`
	Text              string          `json:"text"`
	CompleteTill      int64           `json:"complete_till"`
	ResponsibleUserID int64           `json:"responsible_user_id,omitempty"`
	IsCompleted       bool            `json:"is_completed"`
	Result            json.RawMessage `json:"result,omitempty"`
}
