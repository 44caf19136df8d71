package models

import (
	"fmt"
	"strings"
)

// History is the server-side execution context owning every uploaded dataset
// and produced output of one invocation.
type History struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted,omitempty"`
	Purged  bool   `json:"purged,omitempty"`
}

// Dataset is a history dataset as reported by the server.
type Dataset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HID       int    `json:"hid"`
	Extension string `json:"file_ext,omitempty"`
	State     string `json:"state,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
	Type      string `json:"history_content_type,omitempty"`
}

// DefaultFilename mirrors the server's download naming, Galaxy{hid}-[{name}].{ext}.
func (d Dataset) DefaultFilename() string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(d.Name)

	filename := fmt.Sprintf("Galaxy%d-[%s]", d.HID, name)
	if d.Extension != "" {
		filename += "." + d.Extension
	}

	return filename
}

// Upload is the server response to a file upload: the created datasets and
// the upload jobs producing them.
type Upload struct {
	Outputs []Dataset `json:"outputs"`
	Jobs    []Job     `json:"jobs"`
}
