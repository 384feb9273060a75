package domain

import "time"

// Contact status constants.
const (
	ContactStatusNew      = "new"
	ContactStatusRead     = "read"
	ContactStatusReplied  = "replied"
	ContactStatusArchived = "archived"
)

// Quote status constants.
const (
	QuoteStatusPending   = "pending"
	QuoteStatusReviewing = "reviewing"
	QuoteStatusQuoted    = "quoted"
	QuoteStatusArchived  = "archived"
)

// Contact is an inbound contact-form message.
type Contact struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Quote is an inbound quote request.
type Quote struct {
	ID                 string    `json:"_id"`
	ClientName         string    `json:"clientName"`
	Email              string    `json:"email"`
	ProjectName        string    `json:"projectName"`
	ProjectType        string    `json:"projectType"`
	ProjectDescription string    `json:"projectDescription"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority,omitempty"`
	QuoteAmount        float64   `json:"quoteAmount,omitempty"`
	QuoteDetails       string    `json:"quoteDetails,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Subscriber is a newsletter subscriber.
type Subscriber struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	SubscribedAt time.Time `json:"subscribedAt,omitempty"`
}

// NewsletterStats summarises the subscriber base.
type NewsletterStats struct {
	TotalActive       int            `json:"totalActive"`
	RecentSubscribers int            `json:"recentSubscribers"`
	ByStatus          map[string]int `json:"byStatus"`
}

// StatusUpdate changes the workflow status of a contact or quote.
type StatusUpdate struct {
	Status string `json:"status" validate:"required"`
}

// QuoteOffer is sent to the client of a quote request.
type QuoteOffer struct {
	QuoteAmount  float64 `json:"quoteAmount" validate:"gt=0"`
	QuoteDetails string  `json:"quoteDetails" validate:"required"`
}

// Newsletter is an issue sent to all active subscribers, or only to TestEmail
// when it is set.
type Newsletter struct {
	Subject   string `json:"subject" validate:"required"`
	Content   string `json:"content" validate:"required"`
	TestEmail string `json:"testEmail,omitempty" validate:"omitempty,email"`
}

// ValidContactStatuses returns the set of valid contact statuses.
func ValidContactStatuses() []string {
	return []string{ContactStatusNew, ContactStatusRead, ContactStatusReplied, ContactStatusArchived}
}

// IsValidContactStatus checks whether s is a valid contact status.
func IsValidContactStatus(s string) bool {
	return contains(ValidContactStatuses(), s)
}

// ValidQuoteStatuses returns the set of valid quote statuses.
func ValidQuoteStatuses() []string {
	return []string{QuoteStatusPending, QuoteStatusReviewing, QuoteStatusQuoted, QuoteStatusArchived}
}

// IsValidQuoteStatus checks whether s is a valid quote status.
func IsValidQuoteStatus(s string) bool {
	return contains(ValidQuoteStatuses(), s)
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
