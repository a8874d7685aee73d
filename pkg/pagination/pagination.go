package pagination

// PageDefaultSize is the default page size if not specified
const PageDefaultSize = 20

// PageMaxSize is the maximum allowed page size
const PageMaxSize = 100

// OffsetRequest represents an offset-based pagination request
type OffsetRequest struct {
	Page int `json:"page" query:"page" validate:"min=1"`
	Size int `json:"size" query:"size" validate:"min=1,max=100"`
}

// Validate validates and normalizes offset pagination parameters
func (r *OffsetRequest) Validate() error {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.Size <= 0 {
		r.Size = PageDefaultSize
	}
	if r.Size > PageMaxSize {
		r.Size = PageMaxSize
	}
	return nil
}

// OffsetResult represents an offset-based paginated result
type OffsetResult[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	HasMore bool `json:"has_more"`
}

// NewOffsetResult creates a new offset-based result. HasMore is derived
// from a full page: callers fetching exactly size rows may see one empty
// trailing page.
func NewOffsetResult[T any](items []T, page, size int) *OffsetResult[T] {
	return &OffsetResult[T]{
		Items:   items,
		Page:    page,
		Size:    size,
		HasMore: len(items) == size,
	}
}
