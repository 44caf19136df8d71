package models

// Credential identifies a Galaxy server and the API key used against it.
// It is validated before use and never persisted.
type Credential struct {
	Address string `json:"server"  validate:"required"`
	Key     string `json:"api_key" validate:"required"`
}
