package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
)

// Paging bounds the limit query parameter of job listings.
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

type pageParams struct {
	page  int
	limit int
}

func (p Paging) parse(r *http.Request) (pageParams, error) {
	params := pageParams{page: 1, limit: p.DefaultLimit}
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return params, errors.New(`Parameter "page" is invalid. Must be an integer greater than or equal to 1.`)
		}
		params.page = page
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > p.MaxLimit {
			return params, fmt.Errorf(
				`Parameter "limit" is invalid. Must be an integer greater than or equal to 1 and less than or equal to %d.`,
				p.MaxLimit)
		}
		params.limit = limit
	}
	return params, nil
}

// pagingLinks builds the first, prev, self, next and last relations for a
// listing at root+path. Relations that would point outside the result set
// are left out.
func pagingLinks(root, path string, p store.Pagination) []models.JobLink {
	lastPage := max(p.LastPage, 1)
	link := func(rel, title string, page int) models.JobLink {
		return models.JobLink{
			Href:  fmt.Sprintf("%s%s?page=%d&limit=%d", root, path, page, p.PerPage),
			Rel:   rel,
			Type:  "application/json",
			Title: fmt.Sprintf("%s (%d of %d)", title, page, lastPage),
		}
	}

	var links []models.JobLink
	if p.CurrentPage > 1 {
		links = append(links,
			link("first", "The first page", 1),
			link("prev", "The previous page", p.CurrentPage-1))
	}
	links = append(links, link("self", "The current page", p.CurrentPage))
	if p.CurrentPage < lastPage {
		links = append(links,
			link("next", "The next page", p.CurrentPage+1),
			link("last", "The last page", lastPage))
	}
	return links
}
