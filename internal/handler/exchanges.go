package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/service"
)

// ExchangeHandler serves /api/transactions.
type ExchangeHandler struct {
	Exchanges *service.ExchangeService
	Log       *zap.Logger
}

func NewExchangeHandler(exchanges *service.ExchangeService, log *zap.Logger) *ExchangeHandler {
	return &ExchangeHandler{Exchanges: exchanges, Log: log}
}

type statusReq struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type messageReq struct {
	Content string `json:"content"`
}

// CreateRequest opens an exchange request for a book.
func (h *ExchangeHandler) CreateRequest(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req service.RequestInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ex, err := h.Exchanges.CreateRequest(ctx, uid, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, ex)
}

// UpdateStatus accepts, rejects or withdraws a request.
func (h *ExchangeHandler) UpdateStatus(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := service.ParseExchangeID(c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ex, err := h.Exchanges.UpdateStatus(ctx, uid, id, req.Status, req.Message)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ex)
}

// AddMessage posts a message to the exchange's conversation.
func (h *ExchangeHandler) AddMessage(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := service.ParseExchangeID(c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req messageReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	msg, err := h.Exchanges.AddMessage(ctx, uid, id, req.Content)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// Get returns an exchange with its conversation and marks the other
// party's messages read.
func (h *ExchangeHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := service.ParseExchangeID(c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ex, err := h.Exchanges.GetDetails(ctx, uid, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ex)
}

// ListSent returns the caller's outgoing requests.
func (h *ExchangeHandler) ListSent(c echo.Context) error {
	return h.list(c, h.Exchanges.ListMine)
}

// ListReceived returns the requests made for the caller's books.
func (h *ExchangeHandler) ListReceived(c echo.Context) error {
	return h.list(c, h.Exchanges.ListReceived)
}

// ListByUser returns every exchange the caller takes part in.
func (h *ExchangeHandler) ListByUser(c echo.Context) error {
	return h.list(c, h.Exchanges.ListByUser)
}

// Unread returns the number of exchanges with unread messages.
func (h *ExchangeHandler) Unread(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.Exchanges.UnreadCount(ctx, uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": n})
}

type listFunc func(ctx context.Context, userID uint64, status string) ([]model.Exchange, error)

func (h *ExchangeHandler) list(c echo.Context, fn listFunc) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := fn(ctx, uid, c.QueryParam("status"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}
