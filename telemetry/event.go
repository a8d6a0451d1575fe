package telemetry

import "time"

// Event is everything captured about one request. It is built by the
// telemetry middleware, redacted before dispatch, and not retained after.
type Event struct {
	CorrelationID string `json:"correlationId"`

	Method        string            `json:"httpMethod"`
	Scheme        string            `json:"scheme"`
	Host          string            `json:"host"`
	Protocol      string            `json:"protocol"`
	Path          string            `json:"path"`
	Route         string            `json:"route,omitempty"`
	QueryString   string            `json:"queryString"`
	QueryParams   map[string]string `json:"queryParams,omitempty"`
	RouteValues   map[string]string `json:"routeValues,omitempty"`
	FormFields    map[string]string `json:"formFields,omitempty"`
	ContentType   string            `json:"contentType,omitempty"`
	ContentLength int64             `json:"contentLength"`
	RequestBody   string            `json:"requestBody,omitempty"`
	ClientIP      string            `json:"clientIp"`
	UserAgent     string            `json:"userAgent,omitempty"`
	Controller    string            `json:"controller,omitempty"`
	Action        string            `json:"action,omitempty"`

	ImportantRequestHeaders map[string]string `json:"importantRequestHeaders,omitempty"`
	RequestHeaders          map[string]string `json:"requestHeaders,omitempty"`

	StatusCode               int               `json:"statusCode"`
	ResponseContentType      string            `json:"responseContentType,omitempty"`
	ResponseContentLength    int64             `json:"responseContentLength"`
	ImportantResponseHeaders map[string]string `json:"importantResponseHeaders,omitempty"`
	ResponseHeaders          map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody             string            `json:"responseBody,omitempty"`

	RequestTimestamp  time.Time `json:"requestTimestamp"`
	ResponseTimestamp time.Time `json:"responseTimestamp"`
	DurationMs        float64   `json:"totalDurationMs"`

	User        *UserIdentity     `json:"user,omitempty"`
	Exception   *ExceptionInfo    `json:"exception,omitempty"`
	ErrorReason string            `json:"errorReason,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// UserIdentity is the authenticated principal as seen by telemetry.
type UserIdentity struct {
	IsAuthenticated    bool              `json:"isAuthenticated"`
	AuthenticationType string            `json:"authenticationType,omitempty"`
	UserID             string            `json:"userId,omitempty"`
	TenantID           string            `json:"tenantId,omitempty"`
	UserName           string            `json:"userName,omitempty"`
	Email              string            `json:"email,omitempty"`
	Roles              []string          `json:"roles,omitempty"`
	Claims             map[string]string `json:"claims,omitempty"`
}

// Failed reports whether the request ended with an exception or an error status.
func (e *Event) Failed() bool {
	return e.Exception != nil || e.StatusCode >= 400
}
