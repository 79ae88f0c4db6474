package models

// Column describes one column of a tabular dataset.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DatasetSummary is the shape of a dataset as seen by a full read.
type DatasetSummary struct {
	Path     string   `json:"-"`
	Format   string   `json:"format"`
	RowCount int64    `json:"rowCount"`
	Columns  []Column `json:"columns"`
}

// QueryResult is the outcome of a read-only query against a dataset.
type QueryResult struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated,omitempty"`
}

// DatasetPreview is returned by the preview endpoint.
type DatasetPreview struct {
	File    *FileInfo       `json:"file"`
	Rows    int             `json:"rows"`
	Text    string          `json:"text"`
	Summary *DatasetSummary `json:"summary"`
}
