package worker

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"facekiosk/internal/errs"
	"facekiosk/internal/objectstore"
)

// Profile is an enrolled worker. Profiles are never mutated after creation.
type Profile struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	ReferencePhotoURL string    `json:"reference_photo_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Photo is an uploaded reference image.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Repository is the document-store contract the directory needs.
type Repository interface {
	// InsertWorker stores p and returns it with ID and CreatedAt assigned.
	InsertWorker(ctx context.Context, p Profile) (Profile, error)
	ListWorkers(ctx context.Context) ([]Profile, error)
	// GetWorker returns errs.ErrNotFound when id is unknown.
	GetWorker(ctx context.Context, id string) (Profile, error)
	DeleteWorker(ctx context.Context, id string) error
}

// Service manages worker profiles and their reference photos.
type Service struct {
	repo    Repository
	objects objectstore.Store
	now     func() time.Time
}

// NewService creates a directory backed by repo and objects.
func NewService(repo Repository, objects objectstore.Store) *Service {
	return &Service{repo: repo, objects: objects, now: time.Now}
}

// Add uploads the reference photo, then writes the profile. A failed record write leaves
// the uploaded photo in place.
func (s *Service) Add(ctx context.Context, name, role string, photo *Photo) (Profile, error) {
	name, role = strings.TrimSpace(name), strings.TrimSpace(role)
	switch {
	case name == "":
		return Profile{}, errs.Required("name")
	case role == "":
		return Profile{}, errs.Required("role")
	case photo == nil || len(photo.Data) == 0:
		return Profile{}, errs.Required("photo")
	}

	key := s.photoPath(photo.Filename)
	url, err := s.objects.Put(ctx, photo.Data, key)
	if err != nil {
		return Profile{}, errs.Persistence("upload reference photo", err)
	}

	p, err := s.repo.InsertWorker(ctx, Profile{Name: name, Role: role, ReferencePhotoURL: url})
	if err != nil {
		log.Printf("warning: worker record write failed, photo %s left orphaned: %v", key, err)
		return Profile{}, errs.Persistence("save worker", err)
	}
	log.Printf("worker %s added (%s)", p.ID, p.Name)
	return p, nil
}

// List returns all profiles in store order.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	return s.repo.ListWorkers(ctx)
}

// Get returns a single profile.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	if strings.TrimSpace(id) == "" {
		return Profile{}, errs.Required("id")
	}
	return s.repo.GetWorker(ctx, id)
}

// Remove deletes the profile record only; the reference photo is retained.
func (s *Service) Remove(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.Required("id")
	}
	return errs.Persistence("delete worker", s.repo.DeleteWorker(ctx, id))
}

func (s *Service) photoPath(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "photo.jpg"
	}
	return fmt.Sprintf("workers/%d_%s", s.now().UnixMilli(), base)
}
