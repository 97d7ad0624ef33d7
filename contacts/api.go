package contacts

import (
	"errors"
	"fmt"
	"net/http"

	"cortex/common"
	"cortex/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	return &Controller{service: service}
}

// RunServer starts the contacts HTTP API on CONTACTS_PORT.
func RunServer(service *Service) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := DefineRoutes(NewController(service))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", common.GetContactsPort()),
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start contacts server")
		}
	}()

	return srv
}

func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	r.GET("/resolve", ctrl.ResolveHandler)
	r.GET("/contacts", ctrl.ListHandler)
	r.GET("/contacts/:id", ctrl.GetHandler)
	r.POST("/contacts", ctrl.UpsertHandler)
	r.DELETE("/contacts/:id", ctrl.DeleteHandler)
	return r
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("Contacts API error")
	c.JSON(status, gin.H{"error": err.Error()})
}

// ResolveHandler maps ?platform=&externalId= to a contact, optionally
// creating a placeholder with ?create=true.
func (ctrl *Controller) ResolveHandler(c *gin.Context) {
	platform := domain.Platform(c.Query("platform"))
	externalId := c.Query("externalId")
	if platform == "" || externalId == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("platform and externalId are required"))
		return
	}

	var contact domain.Contact
	var err error
	if c.Query("create") == "true" {
		contact, err = ctrl.service.ResolveOrCreate(c.Request.Context(), platform, externalId)
	} else {
		contact, err = ctrl.service.Resolve(c.Request.Context(), platform, externalId)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
			return
		}
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (ctrl *Controller) ListHandler(c *gin.Context) {
	contacts, err := ctrl.service.List(c.Request.Context())
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func (ctrl *Controller) GetHandler(c *gin.Context) {
	contact, err := ctrl.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
			return
		}
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (ctrl *Controller) UpsertHandler(c *gin.Context) {
	var contact domain.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid contact: %w", err))
		return
	}

	saved, err := ctrl.service.Upsert(c.Request.Context(), contact)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (ctrl *Controller) DeleteHandler(c *gin.Context) {
	if err := ctrl.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
