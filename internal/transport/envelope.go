// Package transport implements the daemon↔server wire format (spec.md
// §6): a JSON envelope carried over HTTP, an authenticated retrying
// client for the daemon side, and the matching gin response helpers for
// the server side, which is the only side that answers requests
// through gin (the daemon's own push-mode listener stays on bare
// net/http, see internal/daemonrt). Both directions speak the same
// Envelope, so the type lives in one place rather than being
// duplicated per direction.
package transport

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

const APIVersion = "1"

// Envelope is the standard response wrapper every daemon↔server RPC
// uses, per spec.md §6. Data is left as raw JSON so a generic decoder
// doesn't need to know the payload shape up front; callers unmarshal it
// into the concrete type they expect.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *string         `json:"error,omitempty"`
	Meta    Meta            `json:"meta"`
}

// Meta carries version and pagination metadata alongside every
// response.
type Meta struct {
	APIVersion    string      `json:"api_version"`
	ServerVersion string      `json:"server_version,omitempty"`
	Pagination    *Pagination `json:"pagination,omitempty"`
}

// Pagination describes a paged listing. Limit 0 means "no limit."
type Pagination struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
}

// NewPagination clamps limit into spec.md §6's allowed range (1-1000,
// 0 meaning none) and derives HasMore from the total count.
func NewPagination(limit, offset, totalCount int) Pagination {
	if limit < 0 {
		limit = 0
	}
	if limit > 1000 {
		limit = 1000
	}
	hasMore := limit > 0 && offset+limit < totalCount
	return Pagination{Limit: limit, Offset: offset, TotalCount: totalCount, HasMore: hasMore}
}

// Respond writes a successful envelope with status and data marshaled
// into Data. A nil data value produces an envelope with no Data field.
func Respond(c *gin.Context, status int, data any, pagination *Pagination) {
	env := Envelope{Success: true, Meta: Meta{APIVersion: APIVersion, Pagination: pagination}}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			RespondError(c, 500, err)
			return
		}
		env.Data = raw
	}
	c.JSON(status, env)
}

// RespondError writes a failure envelope with err's message.
func RespondError(c *gin.Context, status int, err error) {
	msg := err.Error()
	c.JSON(status, Envelope{
		Success: false,
		Error:   &msg,
		Meta:    Meta{APIVersion: APIVersion},
	})
}

// Decode unmarshals env.Data into out. Callers pass a pointer, the same
// as json.Unmarshal.
func (e Envelope) Decode(out any) error {
	if out == nil || len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}
