package messages

import (
	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/validation"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxPage      = 100000
)

// PageQuery holds the page/limit query parameters. Page is 1-based.
type PageQuery struct {
	Page  int `form:"page" binding:"max=100000"`
	Limit int `form:"limit"`
}

// Offset returns the number of rows to skip. Pages past MaxPage are treated
// as MaxPage.
func (q PageQuery) Offset() int {
	page := min(max(q.Page, 1), MaxPage)
	limit := min(max(q.Limit, 0), MaxLimit)
	return (page - 1) * limit
}

func (q *PageQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
}

// BindPage reads and normalizes pagination parameters from the query string
func BindPage(c *gin.Context) (PageQuery, error) {
	var q PageQuery
	if err := validation.BindQuery(c, &q); err != nil {
		return q, err
	}
	q.normalize()
	return q, nil
}

// PageResponse is a page of messages with the paging metadata clients use
type PageResponse struct {
	Messages []MessageView `json:"messages"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	HasMore  bool          `json:"hasMore"`
}

// NewPageResponse combines a list result with the query that produced it
func NewPageResponse(result *ListResult, q PageQuery) PageResponse {
	return PageResponse{
		Messages: result.Messages,
		Total:    result.Total,
		Page:     q.Page,
		Limit:    q.Limit,
		HasMore:  int64(q.Offset()+len(result.Messages)) < result.Total,
	}
}
