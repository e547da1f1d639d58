package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/middleware"
	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/service"
)

// BookHandler serves /api/books.
type BookHandler struct {
	Catalog *service.CatalogService
	Log     *zap.Logger
}

func NewBookHandler(catalog *service.CatalogService, log *zap.Logger) *BookHandler {
	return &BookHandler{Catalog: catalog, Log: log}
}

type bookUpdateReq struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *string `json:"genre"`
	Description *string `json:"description"`
	Condition   *string `json:"condition"`
	Location    *string `json:"location"`
}

// List handles GET /api/books?page&search&genre&condition&location&sortBy.
// A malformed page falls back to the first one.
func (h *BookHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	q := model.BookQuery{
		Search:    c.QueryParam("search"),
		Genre:     c.QueryParam("genre"),
		Condition: c.QueryParam("condition"),
		Location:  c.QueryParam("location"),
		SortBy:    c.QueryParam("sortBy"),
		Page:      page,
	}
	viewer, _ := middleware.UserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Catalog.List(ctx, viewer, q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListOwn returns the caller's books in every status.
func (h *BookHandler) ListOwn(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	books, err := h.Catalog.ListOwn(ctx, uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, books)
}

// Get returns one book.
func (h *BookHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	b, err := h.Catalog.Get(ctx, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Create lists a book for the caller.
func (h *BookHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req service.BookInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	b, err := h.Catalog.Create(ctx, uid, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Update applies a partial edit.  A status field in the body is ignored.
func (h *BookHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	var req bookUpdateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	b, err := h.Catalog.Update(ctx, uid, id, model.BookUpdate{
		Title:       req.Title,
		Author:      req.Author,
		Genre:       req.Genre,
		Description: req.Description,
		Condition:   req.Condition,
		Location:    req.Location,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Delete removes one of the caller's books.
func (h *BookHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Catalog.Delete(ctx, uid, id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book deleted"})
}
