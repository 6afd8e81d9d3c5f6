// Package http exposes a read-only admin API over the collection registry
package http

import (
	"sort"
	"strings"
	"time"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/logger"
	"firestore-odm/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Registry is the part of the metadata storage the handler reads
type Registry interface {
	Collections() []metadata.CollectionMetadataWithSegments
	GetCollection(ref metadata.EntityOrPath, collectionName string) (*metadata.FullCollectionMetadata, error)
	GetRepositories() map[string]metadata.RepositoryMetadata
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker func() error

// Handler serves registry introspection endpoints
type Handler struct {
	Registry Registry
	Checks   map[string]HealthChecker
	Log      logger.Logger
	started  time.Time
}

// NewHandler creates a handler over registry
func NewHandler(registry Registry, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{
		Registry: registry,
		Checks:   make(map[string]HealthChecker),
		Log:      log.WithComponent("admin_http"),
		started:  time.Now(),
	}
}

// AddCheck registers a named health check
func (h *Handler) AddCheck(name string, check HealthChecker) {
	h.Checks[name] = check
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Use(RequestContext())
	router.Get("/health", h.Health)

	v1 := router.Group("/v1")
	v1.Get("/collections", h.ListCollections)
	v1.Get("/collections/resolve", h.ResolveCollection)
	v1.Get("/repositories", h.ListRepositories)
}

// RequestContext copies the request id into the user context, generating one
// when neither the request nor an earlier middleware set it
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.GetRespHeader(fiber.HeaderXRequestID)
		if id == "" {
			id = c.Get(fiber.HeaderXRequestID)
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.SetUserContext(utils.WithComponent(utils.WithRequestID(c.UserContext(), id), "admin_http"))
		return c.Next()
	}
}

// CollectionResponse describes one registered collection
type CollectionResponse struct {
	Name                 string               `json:"name"`
	Entity               string               `json:"entity"`
	Segments             []string             `json:"segments"`
	PathTemplate         string               `json:"pathTemplate"`
	ParentEntity         string               `json:"parentEntity,omitempty"`
	ParentCollectionName string               `json:"parentCollectionName,omitempty"`
	ParentPropertyKey    string               `json:"parentPropertyKey,omitempty"`
	SubCollections       []CollectionResponse `json:"subCollections,omitempty"`
}

// RepositoryResponse describes one custom repository binding
type RepositoryResponse struct {
	Key            string `json:"key"`
	Entity         string `json:"entity"`
	CollectionName string `json:"collectionName,omitempty"`
}

func (h *Handler) ListCollections(c *fiber.Ctx) error {
	h.Log.WithContext(c.UserContext()).Debug("Listing registered collections")

	cols := h.Registry.Collections()
	out := make([]CollectionResponse, 0, len(cols))
	for _, col := range cols {
		out = append(out, toCollectionResponse(col))
	}

	return c.JSON(fiber.Map{
		"collections": out,
		"count":       len(out),
	})
}

// ResolveCollection resolves ?path=bands/b1/albums, optionally overriding the
// collection name with ?name=
func (h *Handler) ResolveCollection(c *fiber.Ctx) error {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "missing_path",
			"message": "Query parameter 'path' is required",
		})
	}

	full, err := h.Registry.GetCollection(metadata.Path(path), c.Query("name"))
	if err != nil {
		h.Log.WithContext(c.UserContext()).WithFields(map[string]interface{}{
			"path":  path,
			"error": err,
		}).Debug("Failed to resolve collection")
		return writeError(c, err)
	}
	if full == nil {
		return writeError(c, errors.NewInvalidCollectionOrPathError(path, true))
	}

	resp := toCollectionResponse(full.CollectionMetadataWithSegments)
	for _, sub := range full.SubCollections {
		resp.SubCollections = append(resp.SubCollections, toCollectionResponse(sub))
	}
	return c.JSON(resp)
}

func (h *Handler) ListRepositories(c *fiber.Ctx) error {
	h.Log.WithContext(c.UserContext()).Debug("Listing repository bindings")

	repos := h.Registry.GetRepositories()
	out := make([]RepositoryResponse, 0, len(repos))
	for key, repo := range repos {
		out = append(out, RepositoryResponse{
			Key:            key,
			Entity:         repo.Entity.Name(),
			CollectionName: repo.CollectionName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return c.JSON(fiber.Map{
		"repositories": out,
		"count":        len(out),
	})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	status := "ok"
	checks := make(fiber.Map, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(); err != nil {
			h.Log.WithFields(map[string]interface{}{
				"check": name,
				"error": err,
			}).Warn("Health check failed")
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"checks":      checks,
		"collections": len(h.Registry.Collections()),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}

func toCollectionResponse(col metadata.CollectionMetadataWithSegments) CollectionResponse {
	resp := CollectionResponse{
		Name:         col.Name,
		Entity:       col.EntityType.Name(),
		Segments:     col.Segments,
		PathTemplate: pathTemplate(col.Segments),
	}
	if col.IsSubCollection() {
		resp.ParentEntity = col.ParentProps.ParentEntityType.Name()
		resp.ParentCollectionName = col.ParentProps.ParentCollectionName
		resp.ParentPropertyKey = col.ParentProps.ParentPropertyKey
	}
	return resp
}

// pathTemplate renders segments as e.g. "bands/{id}/albums"
func pathTemplate(segments []string) string {
	return strings.Join(segments, "/{id}/")
}

func writeError(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": "internal_error", "message": err.Error()}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body["error"] = strings.ToLower(appErr.Code)
		if appErr.Code == "" {
			body["error"] = strings.ToLower(string(appErr.Type))
		}
		body["message"] = appErr.Message
	}
	return c.Status(errors.HTTPStatus(err)).JSON(body)
}
