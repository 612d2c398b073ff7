// Package httputil provides the JSON response helpers, request parsing and
// validation, and the common middleware chain shared by every ContractGuard
// HTTP handler.
//
// Error bodies always have the shape {"error": "<message>"}. Handlers return
// service errors through WriteServiceError, which maps apperrors kinds to
// status codes and hides unclassified errors behind a generic 500.
package httputil
