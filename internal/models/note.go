package models

// Note — примечание сделки.
type Note struct {
	ID                int64          `json:"id"`
	EntityID          int64          `json:"entity_id"`
	NoteType          string         `json:"note_type"`
	Params            map[string]any `json:"params,omitempty"`
	ResponsibleUserID int64          `json:"responsible_user_id,omitempty"`
	CreatedAt         int64          `json:"created_at,omitempty"`
}

// Text returns params.text when the note carries one.
func (n Note) Text() string {
	if n.Params == nil {
		return ""
	}
	s, _ := n.Params["text"].(string)
	return s
}

type NewNote struct {
	EntityID int64          `json:"entity_id"`
	NoteType string         `json:"note_type"`
	Params   map[string]any `json:"params"`
}
