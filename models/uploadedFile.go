package models

import "time"

// UploadedFile tracks an imported Excel workbook and how many check rows
// it contributed.
type UploadedFile struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	Filename   string    `gorm:"size:255;not null" json:"filename"`
	ObjectName string    `gorm:"size:512" json:"object_name"`
	RowCount   int       `json:"row_count"`
	Imported   int       `json:"imported"`
	Skipped    int       `json:"skipped"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
