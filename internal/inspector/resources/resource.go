// Package resources tracks network resources loaded by the inspected page so
// a reattaching frontend can be sent the full list again.
package resources

import (
	"sort"
	"strings"
	"time"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// Type classifies a resource.
type Type int

const (
	TypeDoc Type = iota
	TypeStylesheet
	TypeImage
	TypeFont
	TypeScript
	TypeXHR
	TypeMedia
	TypeWebSocket
	TypeOther
)

// String returns a string representation of the resource type.
func (t Type) String() string {
	switch t {
	case TypeDoc:
		return "document"
	case TypeStylesheet:
		return "stylesheet"
	case TypeImage:
		return "image"
	case TypeFont:
		return "font"
	case TypeScript:
		return "script"
	case TypeXHR:
		return "xhr"
	case TypeMedia:
		return "media"
	case TypeWebSocket:
		return "websocket"
	case TypeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Request is the engine's view of an outgoing request.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Response is the engine's view of a received response.
type Response struct {
	URL                   string
	MIMEType              string
	StatusCode            int
	StatusText            string
	Headers               map[string]string
	ExpectedContentLength int64
	Cached                bool
}

// Resource is one tracked load.
type Resource struct {
	ID           uint64
	URL          string
	DocumentURL  string
	MainResource bool
	Kind         Type

	Method          string
	RequestHeaders  map[string]string
	RequestFormData string

	MIMEType              string
	StatusCode            int
	StatusText            string
	ResponseHeaders       map[string]string
	ExpectedContentLength int64

	Length          int
	Cached          bool
	Finished        bool
	Failed          bool
	FailDescription string

	// Times are seconds since the Unix epoch; zero means not reached yet.
	StartTime            float64
	ResponseReceivedTime float64
	EndTime              float64

	content    string
	hasContent bool
}

// UpdateRequest records the request line and headers.
func (r *Resource) UpdateRequest(req Request) {
	r.Method = req.Method
	r.RequestHeaders = copyHeaders(req.Headers)
	if req.Body != "" {
		r.RequestFormData = req.Body
	}
}

// UpdateResponse records the response status and headers.
func (r *Resource) UpdateResponse(resp Response, at time.Time) {
	r.MIMEType = resp.MIMEType
	r.StatusCode = resp.StatusCode
	r.StatusText = resp.StatusText
	r.ResponseHeaders = copyHeaders(resp.Headers)
	r.ExpectedContentLength = resp.ExpectedContentLength
	r.Cached = r.Cached || resp.Cached
	r.ResponseReceivedTime = seconds(at)
	if r.Kind == TypeOther {
		r.Kind = TypeForMIME(resp.MIMEType)
	}
}

// TypeForMIME guesses the resource type from a MIME type.
func TypeForMIME(mime string) Type {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "text/html" || mime == "application/xhtml+xml":
		return TypeDoc
	case mime == "text/css":
		return TypeStylesheet
	case strings.HasPrefix(mime, "image/"):
		return TypeImage
	case strings.HasPrefix(mime, "font/") || strings.Contains(mime, "font"):
		return TypeFont
	case strings.Contains(mime, "javascript") || mime == "text/x-lua":
		return TypeScript
	case strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/"):
		return TypeMedia
	default:
		return TypeOther
	}
}

// SetContent overrides the resource body, as XHR and imported scripts do.
func (r *Resource) SetContent(data string, kind Type) {
	r.content = data
	r.hasContent = true
	r.Kind = kind
}

// Content returns the override body, if one was set.
func (r *Resource) Content() (string, bool) {
	return r.content, r.hasContent
}

// ToValue builds the updateResource payload.
func (r *Resource) ToValue() *value.Object {
	o := value.NewObject()
	o.SetNumber("id", float64(r.ID))
	o.SetString("url", r.URL)
	o.SetString("documentURL", r.DocumentURL)
	o.Set("requestHeaders", headersObject(r.RequestHeaders))
	o.SetBool("mainResource", r.MainResource)
	o.SetString("requestMethod", r.Method)
	o.SetString("requestFormData", r.RequestFormData)
	o.SetBool("didRequestChange", true)

	o.SetString("mimeType", r.MIMEType)
	o.SetNumber("expectedContentLength", float64(r.ExpectedContentLength))
	o.SetInt("statusCode", r.StatusCode)
	o.SetString("statusText", r.StatusText)
	o.Set("responseHeaders", headersObject(r.ResponseHeaders))
	o.SetBool("cached", r.Cached)
	o.SetBool("didResponseChange", true)

	o.SetInt("type", int(r.Kind))
	o.SetBool("didTypeChange", true)

	o.SetInt("resourceSize", r.Length)
	o.SetBool("didLengthChange", true)

	o.SetBool("failed", r.Failed)
	o.SetString("localizedFailDescription", r.FailDescription)
	o.SetBool("finished", r.Finished)
	o.SetBool("didCompletionChange", true)

	if r.StartTime > 0 {
		o.SetNumber("startTime", r.StartTime)
	}
	if r.ResponseReceivedTime > 0 {
		o.SetNumber("responseReceivedTime", r.ResponseReceivedTime)
	}
	if r.EndTime > 0 {
		o.SetNumber("endTime", r.EndTime)
	}
	o.SetBool("didTimingChange", true)
	return o
}

func headersObject(h map[string]string) *value.Object {
	o := value.NewObject()
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.SetString(k, h[k])
	}
	return o
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
