package relay

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/pkarr/internal/keys"
	"github.com/jroosing/pkarr/internal/pkarr"
)

// Handler implements the relay endpoints.
type Handler struct {
	store     *Store
	logger    *slog.Logger
	startTime time.Time
}

// NewHandler creates the endpoint handlers backed by store.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger, startTime: time.Now()}
}

// GetPacket serves the stored relay payload for the key in the URL.
func (h *Handler) GetPacket(c *gin.Context) {
	key, err := keys.PublicKeyFromString(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid public key"})
		return
	}

	payload, err := h.store.Get(c.Request.Context(), key)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no packet for key"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load packet", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", payload)
}

// PutPacket verifies and stores an uploaded relay payload. The payload is
// rejected when it does not verify under the key in the URL or when the
// store already holds a packet with an equal or newer timestamp.
func (h *Handler) PutPacket(c *gin.Context) {
	key, err := keys.PublicKeyFromString(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid public key"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, pkarr.MaxRelayPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read body"})
		return
	}
	if len(payload) < pkarr.MinRelayPayloadSize || len(payload) > pkarr.MaxRelayPayloadSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payload size out of bounds"})
		return
	}

	sp, err := pkarr.FromRelayPayload(key, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payload failed verification"})
		return
	}

	err = h.store.Put(c.Request.Context(), key, payload, sp.Timestamp())
	if errors.Is(err, ErrStale) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "a newer packet is already stored"})
		return
	}
	if err != nil {
		h.logger.Error("failed to store packet", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	h.logger.Info("packet published", "key", key, "timestamp", sp.Timestamp(), "bytes", len(payload))
	c.Status(http.StatusNoContent)
}

// Health reports store connectivity.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Stats reports process and store statistics.
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)
	stored, err := h.store.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count packets", "error", err)
	}

	resp := StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		StoredPackets: stored,
		GoRoutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumCPU:        runtime.NumCPU(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.SystemMemory = &SystemMemoryResponse{
			TotalMB:     float64(vm.Total) / 1024 / 1024,
			AvailableMB: float64(vm.Available) / 1024 / 1024,
			UsedPercent: vm.UsedPercent,
		}
	}

	c.JSON(http.StatusOK, resp)
}
