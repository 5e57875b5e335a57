package websites

import (
	"context"
	"fmt"

	"sitewatch/internal/api"
	"sitewatch/internal/models"
)

// Service exposes the website REST surface over the authenticated client.
type Service struct {
	client *api.Client
}

// NewService creates the website service.
func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// CreateRequest holds the fields needed to register a website for monitoring.
type CreateRequest struct {
	Name            string `json:"website_name"`
	URL             string `json:"website_url"`
	IntervalMinutes int    `json:"interval"`
}

// List fetches every registered website with its embedded last-check fields.
func (s *Service) List(ctx context.Context) ([]models.Website, error) {
	var sites []models.Website
	if err := s.client.Get(ctx, "website/", &sites); err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	return sites, nil
}

// Create registers a new website and returns the created record.
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.Website, error) {
	var site models.Website
	if err := s.client.Post(ctx, "website/", req, &site); err != nil {
		return models.Website{}, fmt.Errorf("create website: %w", err)
	}
	return site, nil
}

// Get fetches the full detail snapshot for one website.
func (s *Service) Get(ctx context.Context, id int) (models.WebsiteDetail, error) {
	var detail models.WebsiteDetail
	if err := s.client.Get(ctx, fmt.Sprintf("website/%d/", id), &detail); err != nil {
		return models.WebsiteDetail{}, fmt.Errorf("fetch website %d: %w", id, err)
	}
	return detail, nil
}
