// Package backend exposes the bridge catalog, photo galleries and moderation
// queue over a JSON HTTP API.
package backend

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jo-hoe/venicebridges/internal/backend/bridge"
	"github.com/jo-hoe/venicebridges/internal/backend/gallery"
	"github.com/jo-hoe/venicebridges/internal/backend/quota"
	"github.com/jo-hoe/venicebridges/internal/backend/storage"
	"github.com/jo-hoe/venicebridges/internal/common"
	"github.com/jo-hoe/venicebridges/internal/core"
)

const (
	uploadFormField = "image"
	// multipartOverhead is allowed on top of upload.maxBytes for form framing.
	multipartOverhead = 64 << 10
)

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      coreService.Config(),
	}
}

type bridgeSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bridgeDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Images      []gallery.Image `json:"images"`
}

type locatedBridge struct {
	bridgeSummary
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distanceKm"`
}

type uploadResponse struct {
	Image gallery.Image `json:"image"`
	Quota *quota.Usage  `json:"quota,omitempty"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.IPExtractor = s.clientIPExtractor()

	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})
	e.GET("/metrics", echo.WrapHandler(s.coreService.Metrics().Handler()))

	uploadMiddleware := []echo.MiddlewareFunc{
		middleware.BodyLimit(fmt.Sprintf("%dB", s.config.Upload.MaxBytes+multipartOverhead)),
	}
	if rl := s.rateLimiter(); rl != nil {
		uploadMiddleware = append(uploadMiddleware, rl)
	}

	api := e.Group("/api")
	api.GET("/bridges", s.listBridgesHandler)
	api.GET("/bridges/nearest", s.nearestHandler)
	api.GET("/bridges/hit", s.hitTestHandler)
	api.GET("/bridges/:id", s.bridgeHandler)
	api.GET("/bridges/:id/images", s.imagesHandler)
	api.GET("/bridges/:id/quota", s.quotaHandler)
	api.POST("/bridges/:id/images", s.submitHandler, uploadMiddleware...)
	api.POST("/admin/login", s.loginHandler)

	admin := api.Group("/admin", s.coreService.Auth().RequireAdmin())
	admin.GET("/pending", s.pendingHandler)
	admin.POST("/pending/:key/approve", s.approveHandler)
	admin.POST("/pending/:key/reject", s.rejectHandler)
	admin.POST("/bridges/:id/images", s.adminUploadHandler, uploadMiddleware...)

	if _, ok := s.coreService.Store().(*storage.MemoryStore); ok {
		e.GET("/images/:key", s.imageFileHandler)
	}
}

// clientIPExtractor decides what c.RealIP returns, which keys the upload
// quota and rate limit. X-Forwarded-For is only read when the peer is one of
// the configured proxies.
func (s *APIService) clientIPExtractor() echo.IPExtractor {
	proxies := s.config.Server.TrustedProxies
	if len(proxies) == 0 {
		return echo.ExtractIPDirect()
	}
	options := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range proxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			log.Warn().Str("cidr", cidr).Err(err).Msg("ignoring invalid trusted proxy range")
			continue
		}
		options = append(options, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(options...)
}

// rateLimiter limits upload requests per client address. Nil when disabled.
func (s *APIService) rateLimiter() echo.MiddlewareFunc {
	cfg := s.config.RateLimit
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RequestsPerSecond),
			Burst:     cfg.Burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			log.Warn().Str("client_ip", identifier).Msg("upload rate limited")
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, slow down")
		},
	})
}

func (s *APIService) listBridgesHandler(c echo.Context) error {
	bridges := s.coreService.ListBridges()
	out := make([]bridgeSummary, len(bridges))
	for i, b := range bridges {
		out[i] = bridgeSummary{ID: b.ID, Name: b.Name}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *APIService) bridgeHandler(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	b, err := s.coreService.GetBridge(id)
	if err != nil {
		return s.httpError(c, err)
	}
	images, err := s.coreService.ListImages(ctx, id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, bridgeDetail{
		ID:          b.ID,
		Name:        b.Name,
		Description: bridge.SanitizeText(b.Description),
		Latitude:    b.Location.Lat,
		Longitude:   b.Location.Lon,
		Images:      images,
	})
}

func (s *APIService) imagesHandler(c echo.Context) error {
	images, err := s.coreService.ListImages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, images)
}

func (s *APIService) nearestHandler(c echo.Context) error {
	lat, lon, err := bindCoordinates(c)
	if err != nil {
		return err
	}
	b, d, err := s.coreService.NearestBridge(lat, lon)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, located(b, d))
}

func (s *APIService) hitTestHandler(c echo.Context) error {
	lat, lon, err := bindCoordinates(c)
	if err != nil {
		return err
	}
	b, d, err := s.coreService.HitTest(lat, lon)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, located(b, d))
}

func (s *APIService) quotaHandler(c echo.Context) error {
	usage, err := s.coreService.QuotaStatus(c.Request().Context(), c.RealIP(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, usage)
}

func (s *APIService) submitHandler(c echo.Context) error {
	data, err := s.readUpload(c)
	if err != nil {
		return err
	}
	img, usage, err := s.coreService.SubmitImage(c.Request().Context(), c.RealIP(), c.Param("id"), data)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, uploadResponse{Image: img, Quota: &usage})
}

func (s *APIService) adminUploadHandler(c echo.Context) error {
	data, err := s.readUpload(c)
	if err != nil {
		return err
	}
	img, err := s.coreService.UploadApproved(c.Request().Context(), c.Param("id"), data)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, uploadResponse{Image: img})
}

func (s *APIService) loginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid login request")
	}
	if err := c.Validate(&req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return echo.NewHTTPError(httpErr.Code, fmt.Sprintf("invalid login request: %v", httpErr.Message))
		}
		return err
	}
	token, expiresAt, err := s.coreService.Auth().Login(req.Username, req.Password)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *APIService) pendingHandler(c echo.Context) error {
	images, err := s.coreService.ListPending(c.Request().Context())
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, images)
}

func (s *APIService) approveHandler(c echo.Context) error {
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	img, err := s.coreService.Approve(c.Request().Context(), key)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, img)
}

func (s *APIService) rejectHandler(c echo.Context) error {
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	if err := s.coreService.Reject(c.Request().Context(), key); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// imageFileHandler serves objects of the in-memory store, which has no
// public URL of its own.
func (s *APIService) imageFileHandler(c echo.Context) error {
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	store := s.coreService.Store()
	data, err := store.Get(c.Request().Context(), key)
	if err != nil {
		return s.httpError(c, err)
	}
	contentType := "image/jpeg"
	if ms, ok := store.(*storage.MemoryStore); ok {
		if ct, ok := ms.ContentType(key); ok && ct != "" {
			contentType = ct
		}
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func (s *APIService) readUpload(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile(uploadFormField)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("missing %q file field", uploadFormField))
	}
	if fh.Size > s.config.Upload.MaxBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("image exceeds %d bytes", s.config.Upload.MaxBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(f, s.config.Upload.MaxBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	if int64(len(data)) > s.config.Upload.MaxBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("image exceeds %d bytes", s.config.Upload.MaxBytes))
	}
	return data, nil
}

// httpError maps domain errors to responses and logs the failure.
func (s *APIService) httpError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, common.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
		message = fmt.Sprintf("You can only upload up to %d images per bridge per day.", s.config.Quota.Limit)
	case errors.Is(err, common.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrInvalidImage):
		status, message = http.StatusBadRequest, "the uploaded file is not a supported image"
	case errors.Is(err, common.ErrInvalidKey), errors.Is(err, common.ErrInvalidBridgeID):
		status, message = http.StatusBadRequest, err.Error()
	}

	logEvent := log.Warn()
	if status >= http.StatusInternalServerError {
		logEvent = log.Error()
	}
	logEvent.Str("path", c.Path()).Str("bridge_id", c.Param("id")).Str("key", c.Param("key")).
		Int("status", status).Err(err).Msg("request failed")

	return echo.NewHTTPError(status, message)
}

func bindCoordinates(c echo.Context) (float64, float64, error) {
	var lat, lon float64
	if err := echo.QueryParamsBinder(c).
		MustFloat64("lat", &lat).
		MustFloat64("lon", &lon).
		BindError(); err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "lat and lon query parameters are required numbers")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "lat or lon out of range")
	}
	return lat, lon, nil
}

func keyParam(c echo.Context) (string, error) {
	key, err := url.PathUnescape(c.Param("key"))
	if err != nil || key == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid image key")
	}
	return key, nil
}

func located(b bridge.Bridge, distanceKm float64) locatedBridge {
	return locatedBridge{
		bridgeSummary: bridgeSummary{ID: b.ID, Name: b.Name},
		Latitude:      b.Location.Lat,
		Longitude:     b.Location.Lon,
		DistanceKm:    distanceKm,
	}
}
