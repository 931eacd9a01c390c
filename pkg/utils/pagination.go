package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// PaginationParams represents offset pagination parameters
type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// CursorParams represents cursor pagination parameters
type CursorParams struct {
	PageSize int
	Cursor   string
}

// GetPaginationParams extracts offset pagination parameters from request
func GetPaginationParams(c echo.Context) PaginationParams {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))

	if page <= 0 {
		page = 1
	}

	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20 // Default page size
	}

	offset := (page - 1) * pageSize

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   offset,
	}
}

// GetCursorParams extracts cursor pagination parameters from request
func GetCursorParams(c echo.Context) CursorParams {
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))

	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	return CursorParams{
		PageSize: pageSize,
		Cursor:   c.QueryParam("cursor"),
	}
}
