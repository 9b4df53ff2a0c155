package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/cart-totals/internal/common"
)

// BodyLimit caps request payloads at Max bytes. Bodies without a declared
// length are buffered so oversized requests never reach the handler.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.WriteError(w, errTooLarge)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				common.WriteError(w, errTooLarge)
				return
			}
			common.WriteError(w, common.BadRequest("invalid request body", err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

var errTooLarge = common.NewAppError(common.CodePayloadTooLarge, "request entity too large", http.StatusRequestEntityTooLarge, nil)
