package domain

import (
	"time"

	"github.com/Devmainman/kurosadmin/pkg/slug"
)

// Career status constants.
const (
	CareerStatusDraft  = "draft"
	CareerStatusOpen   = "open"
	CareerStatusClosed = "closed"
)

// Description is the short/full text pair most content entities carry.
type Description struct {
	Short string `json:"short"`
	Full  string `json:"full,omitempty"`
}

// Service is a service offering shown on the public site.
type Service struct {
	ID           string      `json:"_id,omitempty"`
	Name         string      `json:"name" validate:"required"`
	Slug         string      `json:"slug,omitempty"`
	Category     string      `json:"category" validate:"required"`
	Description  Description `json:"description"`
	WhyItMatters string      `json:"whyItMatters,omitempty"`
	Features     []string    `json:"features,omitempty"`
	IsActive     bool        `json:"isActive"`
	CreatedAt    time.Time   `json:"createdAt,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt,omitempty"`
}

// Prepare fills derived fields before the service is submitted.
func (s *Service) Prepare() {
	if s.Slug == "" {
		s.Slug = slug.Generate(s.Name)
	}
}

// PortfolioItem is a showcased project.
type PortfolioItem struct {
	ID          string      `json:"_id,omitempty"`
	Title       string      `json:"title" validate:"required"`
	Category    string      `json:"category" validate:"required"`
	Client      string      `json:"client,omitempty"`
	Description Description `json:"description"`
	Images      []string    `json:"images,omitempty"`
	IsFeatured  bool        `json:"isFeatured"`
	CreatedAt   time.Time   `json:"createdAt,omitempty"`
}

// BlogPost is a blog article.
type BlogPost struct {
	ID          string    `json:"_id,omitempty"`
	Title       string    `json:"title" validate:"required"`
	Slug        string    `json:"slug,omitempty"`
	Content     string    `json:"content" validate:"required"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	IsFeatured  bool      `json:"isFeatured"`
	IsPublished bool      `json:"isPublished"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Prepare fills derived fields before the post is submitted.
func (p *BlogPost) Prepare() {
	if p.Slug == "" {
		p.Slug = slug.Generate(p.Title)
	}
}

// TeamMember is a person listed on the team page.
type TeamMember struct {
	ID         string      `json:"_id,omitempty"`
	Name       string      `json:"name" validate:"required"`
	Position   string      `json:"position" validate:"required"`
	Department string      `json:"department,omitempty"`
	Bio        Description `json:"bio"`
	Email      string      `json:"email,omitempty" validate:"omitempty,email"`
	IsActive   bool        `json:"isActive"`
	IsFounder  bool        `json:"isFounder"`
	IsLeader   bool        `json:"isLeader"`
	Order      int         `json:"order,omitempty"`
}

// Initiative is a community or training programme.
type Initiative struct {
	ID          string    `json:"_id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Title       string    `json:"title,omitempty"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Type        string    `json:"type,omitempty"`
	Timeline    string    `json:"timeline,omitempty"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	IsFeatured  bool      `json:"isFeatured"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Career is a job posting.
type Career struct {
	ID          string      `json:"_id,omitempty"`
	Title       string      `json:"title" validate:"required"`
	Department  string      `json:"department" validate:"required"`
	Type        string      `json:"type,omitempty"`
	Location    string      `json:"location,omitempty"`
	Description Description `json:"description"`
	Status      string      `json:"status,omitempty"`
	CreatedAt   time.Time   `json:"createdAt,omitempty"`
}

// Prepare defaults new postings to draft.
func (c *Career) Prepare() {
	if c.Status == "" {
		c.Status = CareerStatusDraft
	}
}

// Application is a candidate's application to a job posting.
type Application struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	ResumeURL string    `json:"resumeUrl,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
