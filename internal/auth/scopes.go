package auth

// Known OAuth scopes accepted by the API.
const (
	ScopeActivitiesRead  = "activities:read"
	ScopeActivitiesWrite = "activities:write"
)
