package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/cryptox"
	"github.com/quartzlab/depot/pkg/httpx"
	"github.com/quartzlab/depot/pkg/slogx"
)

const maxWebhookBytes = 1 << 20

// storageEvent is the MinIO bucket notification payload, reduced to the
// fields we act on.
type storageEvent struct {
	EventName string          `json:"EventName"`
	Records   []storageRecord `json:"Records"`
}

type storageRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

type webhookResponse struct {
	Processed int `json:"processed"`
}

// WebhookHandler serves POST /v1/webhooks/storage: bucket notifications
// from the object store that keep the search projection in sync with
// writes that bypassed the API.
type WebhookHandler struct {
	Files  *service.Files
	Secret string
}

// signature pulls the HMAC from whichever header the sender used. The
// GitHub-style header carries a "sha256=" prefix, MinIO's does not.
func signature(r *http.Request) string {
	sig := r.Header.Get("X-Minio-Signature")
	if sig == "" {
		sig = r.Header.Get("X-Hub-Signature-256")
	}
	return strings.TrimPrefix(sig, "sha256=")
}

// objectKey undoes the event payload's URL encoding. MinIO encodes
// spaces as "+".
func objectKey(raw string) string {
	decoded, err := url.QueryUnescape(strings.ReplaceAll(raw, "+", "%20"))
	if err != nil {
		return raw
	}
	return decoded
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeBadRequest(w)
		return
	}

	// Authenticate before parsing a single byte of the payload.
	sig := signature(r)
	if sig == "" || !cryptox.VerifyHMACSHA256(body, sig, h.Secret) {
		log.Warn("webhook signature rejected")
		httpx.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var event storageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeBadRequest(w)
		return
	}

	processed := 0
	for _, rec := range event.Records {
		bucket := rec.S3.Bucket.Name
		key := objectKey(rec.S3.Object.Key)
		if bucket == "" || key == "" {
			continue
		}

		eventName := rec.EventName
		if eventName == "" {
			eventName = event.EventName
		}

		switch {
		case strings.Contains(eventName, "ObjectRemoved"):
			err = h.Files.Deindex(ctx, bucket, key)
		default:
			err = h.Files.Reindex(ctx, bucket, key)
		}
		if err != nil {
			log.Error("webhook record failed",
				"event", eventName, "bucket", bucket, "key", key, "err", err)
			writeServiceError(ctx, w, err)
			return
		}
		processed++
	}

	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Processed: processed})
}
