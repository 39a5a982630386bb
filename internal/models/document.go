package models

// Document is the backend's record of an accepted upload. Handle is opaque.
type Document struct {
	Handle      string `json:"file_hash"`
	DisplayName string `json:"filename"`
}
