package types

import "encoding/json"

// ModelConfig is a model configuration record held by the config store.
type ModelConfig struct {
	// Absolute path to the model weights on disk.
	// example: /home/user/models/pokemon.safetensors
	Path string `json:"path" yaml:"path" example:"/home/user/models/pokemon.safetensors"`
	// Human-friendly name.
	// example: pokemon
	Name string `json:"name" yaml:"name" example:"pokemon"`
	// Base model the weights were trained against.
	// example: sd-1
	BaseModel string `json:"base_model" yaml:"base_model" example:"sd-1"`
	// Kind of model (main, vae, lora, embedding, ...).
	// example: embedding
	ModelType string `json:"model_type" yaml:"model_type" example:"embedding"`
	// On-disk format of the weights.
	// example: embedding_file
	ModelFormat string `json:"model_format" yaml:"model_format" example:"embedding_file"`
	// Optional author attribution.
	// example: Anonymous
	Author string `json:"author,omitempty" yaml:"author,omitempty" example:"Anonymous"`
	// Optional free-form description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Workflow is a user-editable node graph, without storage metadata.
type Workflow struct {
	// Unique workflow id. Empty on creation; assigned by the store.
	// example: 7f1b2c3d
	ID string `json:"id,omitempty" example:"7f1b2c3d"`
	// Workflow display name.
	// example: SDXL text-to-image
	Name string `json:"name" example:"SDXL text-to-image"`
	// Optional author attribution.
	Author string `json:"author,omitempty"`
	// Optional free-form description.
	Description string `json:"description,omitempty"`
	// Semantic version of the workflow.
	// example: 1.0.0
	Version string `json:"version,omitempty" example:"1.0.0"`
	// Optional contact address for the author.
	Contact string `json:"contact,omitempty"`
	// Search tags.
	Tags string `json:"tags,omitempty"`
	// Free-form notes.
	Notes string `json:"notes,omitempty"`
	// The node graph itself, opaque to the server.
	Graph json.RawMessage `json:"graph,omitempty"`
}

// WorkflowRecord is a stored workflow plus its storage metadata.
type WorkflowRecord struct {
	Workflow Workflow `json:"workflow"`
	// Creation time in unix seconds.
	// example: 1700000000
	CreatedAt int64 `json:"created_at" example:"1700000000"`
	// Last update time in unix seconds.
	// example: 1700000100
	UpdatedAt int64 `json:"updated_at" example:"1700000100"`
	// Last time the workflow was opened, unix seconds (0 = never).
	OpenedAt int64 `json:"opened_at,omitempty"`
}

// PaginatedResults is a page of items plus paging bookkeeping.
type PaginatedResults[T any] struct {
	// Zero-based page index.
	// example: 0
	Page int `json:"page" example:"0"`
	// Total number of pages at this page size.
	// example: 3
	Pages int `json:"pages" example:"3"`
	// Page size requested.
	// example: 10
	PerPage int `json:"per_page" example:"10"`
	// Total number of items across all pages.
	// example: 23
	Total int `json:"total" example:"23"`
	// The page of items.
	Items []T `json:"items"`
}
