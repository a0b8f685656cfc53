package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dpays/jefferson/internal/httpapi/models"
	"github.com/dpays/jefferson/internal/registry"
)

// GetConfig renders the loaded registry and request-shape limits
// read-only. There is no corresponding write endpoint: the registry is
// immutable for the process lifetime, unlike the teacher's zone/
// filtering config which accepted PUT and a reload trigger.
func (h *Handler) GetConfig(c *gin.Context) {
	var rules []models.RuleView
	if h.registry != nil {
		for _, r := range h.registry.Rules() {
			rules = append(rules, models.RuleView{
				URNPrefix:          r.Prefix,
				UsesEnvVar:         r.URLEnvVar != "",
				Transport:          transportName(r.Transport),
				TTL:                ttlName(r.TTL),
				TimeoutSeconds:     r.Timeout.Seconds(),
				Retries:            r.Retries,
				TranslateToAppbase: r.TranslateToAppbase,
			})
		}
	}

	c.JSON(http.StatusOK, models.ConfigResponse{
		Rules:                 rules,
		NumericAPIs:           h.cfg.Registry.NumericAPIs,
		MaxBatchSize:          h.cfg.Server.MaxBatchSize,
		MaxCustomJSONOpLength: h.limits.MaxCustomJSONOpLength,
	})
}

func transportName(k registry.TransportKind) string {
	switch k {
	case registry.TransportWebSocket:
		return "websocket"
	case registry.TransportHTTP:
		return "http"
	default:
		return "unknown"
	}
}

func ttlName(t registry.TTL) string {
	switch t.Kind {
	case registry.TTLNoCache:
		return "no_cache"
	case registry.TTLNoExpire:
		return "no_expire"
	case registry.TTLNoExpireIfIrreversible:
		return "no_expire_if_irreversible"
	case registry.TTLSeconds:
		return strconv.Itoa(t.Seconds)
	default:
		return ""
	}
}
