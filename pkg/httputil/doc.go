// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, the API error
// taxonomy, parameter parsing, and validation.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNoContent(w)
//
// Error responses carry a machine-readable kind so calling UIs can react
// differently to each rejection (redirect to login on "unauthenticated",
// show a permission message on "forbidden", and so on):
//
//	httputil.WriteAPIError(w, httputil.Forbidden("editor role required"))
//	httputil.WriteAPIError(w, httputil.Infrastructure("role lookup failed", err))
//
// # Request Parsing
//
// JSON parsing:
//
//	var req CreateStoryRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Project extraction (query parameter first, JSON body fallback):
//
//	project := httputil.ProjectFromRequest(r)
//
// # Related Packages
//
//   - pkg/rbac: Authentication and authorization built on these helpers
package httputil
