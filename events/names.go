package events

// Equipment events
const (
	EquipmentAdded         = "equipment:added"
	EquipmentUpdated       = "equipment:updated"
	EquipmentDeleted       = "equipment:deleted"
	EquipmentStatusChanged = "equipment:status:changed"
	EquipmentImported      = "equipments:imported"
)

// Usage events
const (
	UsageRecorded = "usage:recorded"
	UsageDeleted  = "usage:deleted"
)

// User and session events
const (
	UserCreated    = "user:created"
	UserUpdated    = "user:updated"
	UserDeleted    = "user:deleted"
	UserLoggedIn   = "user:logged_in"
	UserLoggedOut  = "user:logged_out"
	SessionExpired = "session:expired"
	TokenRefreshed = "auth:token_refreshed"
)

// Form, search and loading events
const (
	FormValidationError = "form:validation:error"
	FormSubmitted       = "form:submitted"
	FormReset           = "form:reset"
	SearchPerformed     = "search:performed"
	SearchCleared       = "search:cleared"
	LoadingStarted      = "loading:started"
	LoadingFinished     = "loading:finished"
	ErrorOccurred       = "error:occurred"
)

// Request lifecycle events
const (
	RequestStart = "request:start"
	RequestEnd   = "request:end"
)

// Events emitted by the HTTP client's status policy
const (
	APIValidationError = "api:validation:error"
	APIRequestError    = "api:request:error"
	AuthRequired       = "auth:required"
	Forbidden          = "auth:forbidden"
	ResourceNotFound   = "resource:not_found"
	RateLimitExceeded  = "rate_limit:exceeded"
	ServerError        = "server:error"
	ServiceUnavailable = "service:unavailable"
)
