package models

type Pipeline struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Sort     int               `json:"sort,omitempty"`
	IsMain   bool              `json:"is_main"`
	Embedded *PipelineEmbedded `json:"_embedded,omitempty"`
}

type PipelineEmbedded struct {
	Statuses []Stage `json:"statuses,omitempty"`
}

// Stage — этап воронки (status в терминах amoCRM).
type Stage struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Sort       int    `json:"sort,omitempty"`
	Color      string `json:"color,omitempty"`
	PipelineID int64  `json:"pipeline_id"`
}

// Stages returns the embedded statuses or nil.
func (p *Pipeline) Stages() []Stage {
	if p.Embedded == nil {
		return nil
	}
	return p.Embedded.Statuses
}
