// Package types holds the wire types shared by the appify HTTP API, the Go
// client and the wizard. Field names follow the JSON shapes of the remote
// actor service so values can be relayed without renaming.
package types

import "encoding/json"

// User is the account behind a credential.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
}

// ValidateKeyResponse is returned by the key check endpoint.
type ValidateKeyResponse struct {
	Valid bool   `json:"valid" yaml:"valid"`
	User  *User  `json:"user,omitempty" yaml:"user,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ActorSummary is an immutable snapshot of a store listing entry.
type ActorSummary struct {
	ID             string          `json:"id" yaml:"id"`
	Username       string          `json:"username,omitempty" yaml:"username,omitempty"`
	Name           string          `json:"name" yaml:"name"`
	Title          string          `json:"title,omitempty" yaml:"title,omitempty"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty"`
	PictureURL     string          `json:"pictureUrl,omitempty" yaml:"pictureUrl,omitempty"`
	UserPictureURL string          `json:"userPictureUrl,omitempty" yaml:"userPictureUrl,omitempty"`
	Stats          json.RawMessage `json:"stats,omitempty" yaml:"-"`
	Category       string          `json:"category,omitempty" yaml:"category,omitempty"`
	IsPublic       bool            `json:"isPublic" yaml:"isPublic"`
	PricingModel   string          `json:"pricingModel,omitempty" yaml:"pricingModel,omitempty"`
}

// DisplayName returns the title when set, otherwise the name.
func (a ActorSummary) DisplayName() string {
	if a.Title != "" {
		return a.Title
	}
	return a.Name
}

// ActorDetail is a single actor including its input schema.
// InputSchema is relayed verbatim and is null when the schema could not be
// fetched.
type ActorDetail struct {
	ID                string          `json:"id" yaml:"id"`
	Name              string          `json:"name" yaml:"name"`
	Username          string          `json:"username,omitempty" yaml:"username,omitempty"`
	Title             string          `json:"title,omitempty" yaml:"title,omitempty"`
	Description       string          `json:"description,omitempty" yaml:"description,omitempty"`
	Readme            string          `json:"readme,omitempty" yaml:"readme,omitempty"`
	InputSchema       json.RawMessage `json:"inputSchema" yaml:"-"`
	Stats             json.RawMessage `json:"stats,omitempty" yaml:"-"`
	Versions          json.RawMessage `json:"versions,omitempty" yaml:"-"`
	DefaultRunOptions json.RawMessage `json:"defaultRunOptions,omitempty" yaml:"-"`
}

// HasInputSchema reports whether a schema document is present.
func (a ActorDetail) HasInputSchema() bool {
	return len(a.InputSchema) > 0 && string(a.InputSchema) != "null"
}

// Page is a list response with the pagination counters echoed from upstream.
type Page[T any] struct {
	Items  []T `json:"items" yaml:"items"`
	Total  int `json:"total" yaml:"total"`
	Count  int `json:"count" yaml:"count"`
	Offset int `json:"offset" yaml:"offset"`
	Limit  int `json:"limit" yaml:"limit"`
}
