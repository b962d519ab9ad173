package models

import "time"

// BackupSnapshot is a full JSON dump of the billing tables.
type BackupSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Professors  []Professor  `json:"professores"`
	Courses     []Course     `json:"cursos"`
	Clients     []Client     `json:"clientes"`
	Enrollments []Enrollment `json:"matriculas"`
	Payments    []Payment    `json:"pagamentos"`
}

// BackupResult describes a stored snapshot and its signed download token.
type BackupResult struct {
	FileName      string    `json:"file_name"`
	SizeBytes     int64     `json:"size_bytes"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}
