package main

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler serves the CRM routes and the send endpoints. Sends fail at
// random with failureRate.
type Handler struct {
	store       *Store
	failureRate float64
	mu          sync.Mutex
	rng         *rand.Rand
}

func NewHandler(store *Store, failureRate float64, seed int64) *Handler {
	return &Handler{store: store, failureRate: failureRate, rng: rand.New(rand.NewSource(seed))}
}

func (h *Handler) fails() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < h.failureRate
}

func (h *Handler) respond(c *gin.Context, status int, name string, payload any) {
	if h.store.enveloped[name] {
		c.JSON(status, gin.H{"success": true, "data": payload})
		return
	}
	c.JSON(status, payload)
}

func (h *Handler) collection(c *gin.Context) (*collection, string, bool) {
	name := c.Param("resource")
	coll, ok := h.store.Collection(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Ressource inconnue"})
		return nil, "", false
	}
	return coll, name, true
}

func (h *Handler) List(c *gin.Context) {
	coll, name, ok := h.collection(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, name, coll.list())
}

func (h *Handler) Get(c *gin.Context) {
	coll, name, ok := h.collection(c)
	if !ok {
		return
	}
	id, valid := parseID(c.Param("id"))
	r, found := coll.get(id)
	if !valid || !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Élément introuvable"})
		return
	}
	h.respond(c, http.StatusOK, name, r)
}

func (h *Handler) Create(c *gin.Context) {
	coll, name, ok := h.collection(c)
	if !ok {
		return
	}
	var r record
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	h.respond(c, http.StatusCreated, name, coll.create(r))
}

func (h *Handler) Update(c *gin.Context) {
	coll, name, ok := h.collection(c)
	if !ok {
		return
	}
	var patch record
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	id, valid := parseID(c.Param("id"))
	r, found := coll.update(id, patch)
	if !valid || !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Élément introuvable"})
		return
	}
	h.respond(c, http.StatusOK, name, r)
}

func (h *Handler) Delete(c *gin.Context) {
	coll, _, ok := h.collection(c)
	if !ok {
		return
	}
	id, valid := parseID(c.Param("id"))
	if !valid || !coll.delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Élément introuvable"})
		return
	}
	c.Status(http.StatusNoContent)
}

type sendEmailRequest struct {
	Destinator string `json:"destinator" binding:"required,email"`
	Subject    string `json:"subject" binding:"required"`
	Body       string `json:"body" binding:"required"`
}

func (h *Handler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if h.fails() {
		log.Warn().Str("to", req.Destinator).Msg("email rejected")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Boîte de réception indisponible"})
		return
	}
	id := "<" + uuid.NewString() + "@mockbackend>"
	log.Info().Str("to", req.Destinator).Str("message_id", id).Msg("email sent")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email envoyé", "messageId": id})
}

type bulkContact struct {
	ID        int64  `json:"id"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Telephone string `json:"telephone"`
}

type bulkSMSRequest struct {
	Contacts []bulkContact `json:"contacts" binding:"required,min=1"`
	Message  string        `json:"message" binding:"required"`
}

func (h *Handler) SendBulkSMS(c *gin.Context) {
	var req bulkSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	results := make([]gin.H, 0, len(req.Contacts))
	sent := 0
	for _, ct := range req.Contacts {
		text := strings.NewReplacer("[Prénom]", ct.Prenom, "[Nom]", ct.Nom).Replace(req.Message)
		res := gin.H{
			"contactName": strings.TrimSpace(ct.Prenom + " " + ct.Nom),
			"recipient":   ct.Telephone,
			"contact_id":  ct.ID,
		}
		ok := !h.fails()
		res["success"] = ok
		if ok {
			sent++
			res["message_id"] = uuid.NewString()
		} else {
			res["error"] = "Numéro injoignable"
		}
		h.store.sms.create(record{
			"id_contact":   ct.ID,
			"message":      text,
			"telephone":    ct.Telephone,
			"date_envoyee": time.Now().UTC().Format(time.RFC3339),
			"statut":       map[bool]string{true: "envoye", false: "echec"}[ok],
		})
		results = append(results, res)
	}

	failed := len(req.Contacts) - sent
	c.JSON(http.StatusOK, gin.H{
		"success":      failed == 0,
		"message":      strconv.Itoa(sent) + " SMS envoyé(s)",
		"total_sent":   sent,
		"total_failed": failed,
		"results":      results,
	})
}

func (h *Handler) SMSHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.store.sms.list()})
}

func (h *Handler) SMSStats(c *gin.Context) {
	total, ok := 0, 0
	for _, r := range h.store.sms.list() {
		total++
		if r["statut"] == "envoye" {
			ok++
		}
	}
	rate := 0.0
	if total > 0 {
		rate = float64(ok) * 100 / float64(total)
	}
	c.JSON(http.StatusOK, gin.H{
		"total_sms":   total,
		"sms_envoyes": ok,
		"sms_echecs":  total - ok,
		"taux_succes": rate,
		"daily_stats": []gin.H{},
	})
}

type gatewaySendRequest struct {
	MessageID   string `json:"message_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Content     string `json:"content" binding:"required"`
	Sender      string `json:"sender"`
}

// GatewaySend answers like an SMS operator, so the api can use this
// process as its provider pool.
func (h *Handler) GatewaySend(c *gin.Context) {
	var req gatewaySendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	res := gin.H{"message_id": req.MessageID, "operator_id": "MOCK_BACKEND"}
	if h.fails() {
		res["status"] = "FAILED"
		res["error_code"] = "NETWORK_ERROR"
		res["error_message"] = "Network connectivity issue with operator"
		c.JSON(http.StatusAccepted, res)
		return
	}
	now := time.Now()
	res["status"] = "DELIVERED"
	res["delivered_at"] = now
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"operator_id":  "MOCK_BACKEND",
		"timestamp":    time.Now(),
		"failure_rate": h.failureRate,
		"collections":  h.store.Names(),
	})
}

// SetupRouter configures all routes
func SetupRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	router.POST("/send-email", h.SendEmail)
	router.POST("/sms/send-bulk", h.SendBulkSMS)
	router.GET("/sms/history", h.SMSHistory)
	router.GET("/sms/stats", h.SMSStats)
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sms/send", h.GatewaySend)
		v1.GET("/health", h.Health)
	}

	router.GET("/:resource", h.List)
	router.POST("/:resource", h.Create)
	router.GET("/:resource/:id", h.Get)
	router.PUT("/:resource/:id", h.Update)
	router.DELETE("/:resource/:id", h.Delete)

	return router
}
