package model

import "time"

// BookStatus is the server-controlled availability of a listing.
type BookStatus string

const (
	BookAvailable BookStatus = "available"
	BookPending   BookStatus = "pending"
	BookExchanged BookStatus = "exchanged"
)

// Conditions lists the accepted values of Book.Condition.
var Conditions = []string{"New", "Like New", "Good", "Fair", "Poor"}

// Locations lists the cities a listing can be offered in.
var Locations = []string{
	"Ahmedabad", "Bangalore", "Chennai", "Delhi",
	"Hyderabad", "Kolkata", "Mumbai", "Pune",
}

// ValidCondition reports whether s is one of Conditions.
func ValidCondition(s string) bool { return contains(Conditions, s) }

// ValidLocation reports whether s is one of Locations.
func ValidLocation(s string) bool { return contains(Locations, s) }

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Book is a listing offered for exchange.  Status never changes through
// the owner's edits; it follows the lifecycle of exchange requests.
type Book struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Genre       string     `json:"genre"`
	Description string     `json:"description,omitempty"`
	Condition   string     `json:"condition"`
	Location    string     `json:"location"`
	Status      BookStatus `json:"status"`
	OwnerID     uint64     `json:"ownerId"`
	OwnerName   string     `json:"ownerName,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BookUpdate carries the owner-editable fields.  Status is not one of them.
type BookUpdate struct {
	Title       *string
	Author      *string
	Genre       *string
	Description *string
	Condition   *string
	Location    *string
}

// Apply copies the non-nil fields of u onto b.
func (u BookUpdate) Apply(b *Book) {
	if u.Title != nil {
		b.Title = *u.Title
	}
	if u.Author != nil {
		b.Author = *u.Author
	}
	if u.Genre != nil {
		b.Genre = *u.Genre
	}
	if u.Description != nil {
		b.Description = *u.Description
	}
	if u.Condition != nil {
		b.Condition = *u.Condition
	}
	if u.Location != nil {
		b.Location = *u.Location
	}
}

// Sort modes accepted by the public listing.
const (
	SortNewest      = "newest"
	SortOldest      = "oldest"
	SortTitle       = "title"
	SortRecommended = "recommended"
)

// BookPageSize is the fixed page size of the public listing.
const BookPageSize = 12

// BookQuery defines filters and pagination for the public listing.  Only
// available books are ever returned.
type BookQuery struct {
	Search          string
	Genre           string
	Condition       string
	Location        string
	SortBy          string
	PreferredGenres []string
	Page            int
	PageSize        int
}

// Offset returns the number of rows to skip for q.Page.
func (q BookQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}
