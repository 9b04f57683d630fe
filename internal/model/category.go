package model

import "time"

// FallbackCategoryID is returned by classification when no category
// scores above zero.
const FallbackCategoryID = "andet"

// Category is a keyword-scored taxonomy entry.
type Category struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	SortOrder   int       `json:"sort_order" yaml:"sort_order"`
	Active      bool      `json:"active" yaml:"active"`
	ParentID    string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Icon        string    `json:"icon,omitempty" yaml:"icon,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}
