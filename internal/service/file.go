package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
	"github.com/saproto/identity/internal/storage"
)

type FileService struct {
	fileRepo repository.FileRepository
	storage  storage.Storage
}

func NewFileService(fileRepo repository.FileRepository, storage storage.Storage) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		storage:  storage,
	}
}

// Upload stores the content under a random name and records it.
func (s *FileService) Upload(ctx context.Context, folder, originalFilename, mime string, content io.Reader) (*model.File, error) {
	var buf bytes.Buffer
	size, err := io.Copy(&buf, content)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	filename := uuid.New().String() + filepath.Ext(originalFilename)
	storagePath := path.Join(folder, filename)

	err = s.storage.Save(ctx, storagePath, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	file := &model.File{
		OriginalFilename: originalFilename,
		Mime:             mime,
		StoragePath:      storagePath,
		Size:             size,
		CreatedAt:        time.Now().UTC(),
	}

	err = s.fileRepo.Create(ctx, file)
	if err != nil {
		// If DB insert fails, try to cleanup the uploaded file
		delErr := s.storage.Delete(ctx, storagePath)
		if delErr != nil {
			slog.Error("failed to delete file from storage during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	return file, nil
}

func (s *FileService) Content(ctx context.Context, file *model.File) ([]byte, error) {
	return storage.Load(ctx, s.storage, file.StoragePath)
}

// ContentByID loads the stored bytes of a file record.
func (s *FileService) ContentByID(ctx context.Context, id int64) (*model.File, []byte, error) {
	file, err := s.fileRepo.ByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.Content(ctx, file)
	if err != nil {
		return nil, nil, err
	}
	return file, data, nil
}
