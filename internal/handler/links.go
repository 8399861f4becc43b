package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"burnlink/internal/repo"
	"burnlink/internal/shortcode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// LinkHandler is the admin link-management API. The public redirect path
// never goes through here.
type LinkHandler struct {
	linksRepo  *repo.LinksRepo
	clicksRepo *repo.ClicksRepo
	generator  *shortcode.Generator
}

func NewLinkHandler(linksRepo *repo.LinksRepo, clicksRepo *repo.ClicksRepo, generator *shortcode.Generator) *LinkHandler {
	return &LinkHandler{
		linksRepo:  linksRepo,
		clicksRepo: clicksRepo,
		generator:  generator,
	}
}

type CreateLinkRequest struct {
	URL           string     `json:"url"`
	CustomCode    string     `json:"custom_code"`
	Title         *string    `json:"title"`
	ExpiryType    string     `json:"expiry_type"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxViews      *int64     `json:"max_views"`
	Password      string     `json:"password"`
	CustomMessage *string    `json:"custom_message"`
}

func (r *CreateLinkRequest) Validate() error {
	if r.URL == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(r.URL)
	if err != nil || !parsed.IsAbs() {
		return errors.New("url must be absolute")
	}

	if r.ExpiryType == "" {
		r.ExpiryType = string(repo.ExpiryNone)
	}
	expiryType := repo.ExpiryType(r.ExpiryType)
	if !expiryType.Valid() {
		return errors.New("expiry_type must be one of NONE, TIME, VIEWS, BOTH")
	}

	if expiryType.UsesTime() && r.ExpiresAt == nil {
		return errors.New("expires_at is required for TIME and BOTH expiry")
	}
	if expiryType.UsesViews() {
		if r.MaxViews == nil {
			return errors.New("max_views is required for VIEWS and BOTH expiry")
		}
		if *r.MaxViews < 1 {
			return errors.New("max_views must be at least 1")
		}
	}

	if r.CustomCode != "" {
		if err := shortcode.Validate(r.CustomCode); err != nil {
			return err
		}
	}

	return nil
}

type LinkResponse struct {
	ID            int64      `json:"id"`
	ShortCode     string     `json:"short_code"`
	TargetURL     string     `json:"target_url"`
	Title         *string    `json:"title"`
	ExpiryType    string     `json:"expiry_type"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxViews      *int64     `json:"max_views"`
	CurrentViews  int64      `json:"current_views"`
	TotalClicks   int64      `json:"total_clicks"`
	IsActive      bool       `json:"is_active"`
	HasPassword   bool       `json:"has_password"`
	CustomMessage *string    `json:"custom_message"`
	CreatedAt     time.Time  `json:"created_at"`
	LastClickedAt *time.Time `json:"last_clicked_at"`
}

type CreateLinkResponse struct {
	Link LinkResponse `json:"link"`
}

type ListLinksResponse struct {
	Links []LinkResponse `json:"links"`
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if err := req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	code := req.CustomCode
	if code == "" {
		generated, err := h.generator.Generate(ctx)
		if err != nil {
			log.Error().Err(err).Msg("short code generation failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate short code")
		}
		code = generated
	}

	params := repo.CreateLinkParams{
		ShortCode:     code,
		TargetURL:     req.URL,
		Title:         req.Title,
		ExpiryType:    repo.ExpiryType(req.ExpiryType),
		ExpiresAt:     req.ExpiresAt,
		MaxViews:      req.MaxViews,
		CustomMessage: req.CustomMessage,
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to hash password")
		}
		hashStr := string(hash)
		params.PasswordHash = &hashStr
	}

	link, err := h.linksRepo.Create(ctx, params)
	if err != nil {
		if errors.Is(err, repo.ErrShortCodeTaken) {
			return echo.NewHTTPError(http.StatusConflict, "short code already taken")
		}
		log.Error().Err(err).Str("short_code", code).Msg("failed to create link")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, CreateLinkResponse{Link: h.toResponse(c, link)})
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	ctx := c.Request().Context()

	links, err := h.linksRepo.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list links")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	responses := lo.Map(links, func(link *repo.Link, _ int) LinkResponse {
		return h.toResponse(c, link)
	})

	return c.JSON(http.StatusOK, ListLinksResponse{Links: responses})
}

func (h *LinkHandler) GetLink(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid link id")
	}

	link, err := h.linksRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrLinkNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "link not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, h.toResponse(c, link))
}

type UpdateLinkRequest struct {
	URL           *string `json:"url"`
	Title         *string `json:"title"`
	CustomMessage *string `json:"custom_message"`
	Deactivate    bool    `json:"deactivate"`
}

// UpdateLink changes non-policy fields. Expiry configuration is immutable
// after creation; deactivation is allowed but cannot be undone.
func (h *LinkHandler) UpdateLink(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid link id")
	}

	var req UpdateLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if req.URL != nil {
		parsed, err := url.Parse(*req.URL)
		if err != nil || !parsed.IsAbs() {
			return echo.NewHTTPError(http.StatusBadRequest, "url must be absolute")
		}
	}

	link, err := h.linksRepo.Update(ctx, id, repo.UpdateLinkParams{
		TargetURL:     req.URL,
		Title:         req.Title,
		CustomMessage: req.CustomMessage,
		Deactivate:    req.Deactivate,
	})
	if err != nil {
		if errors.Is(err, repo.ErrLinkNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "link not found")
		}
		log.Error().Err(err).Int64("link_id", id).Msg("failed to update link")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, h.toResponse(c, link))
}

func (h *LinkHandler) DeleteLink(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid link id")
	}

	if err := h.linksRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrLinkNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "link not found")
		}
		log.Error().Err(err).Int64("link_id", id).Msg("failed to delete link")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *LinkHandler) toResponse(c echo.Context, link *repo.Link) LinkResponse {
	resp := LinkResponse{
		ID:            link.ID,
		ShortCode:     link.ShortCode,
		TargetURL:     link.TargetURL,
		Title:         link.Title,
		ExpiryType:    string(link.ExpiryType),
		ExpiresAt:     link.ExpiresAt,
		MaxViews:      link.MaxViews,
		CurrentViews:  link.CurrentViews,
		TotalClicks:   link.TotalClicks,
		IsActive:      link.IsActive,
		HasPassword:   link.HasPassword(),
		CustomMessage: link.CustomMessage,
		CreatedAt:     link.CreatedAt,
	}

	stats, err := h.clicksRepo.GetStatsForLink(c.Request().Context(), link.ID)
	if err == nil && stats != nil {
		resp.LastClickedAt = stats.LastClickedAt
	}

	return resp
}
