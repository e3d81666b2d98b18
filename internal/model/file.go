package model

import (
	"time"
)

type File struct {
	ID               int64     `db:"id"`
	OriginalFilename string    `db:"original_filename"`
	Mime             string    `db:"mime"`
	StoragePath      string    `db:"storage_path"`
	Size             int64     `db:"size"`
	CreatedAt        time.Time `db:"created_at"`
}
