// Package api serves the information asset register over HTTP.
//
// # Endpoints
//
//	GET    /assets/          list visible assets (filters, search, ordering, cursor)
//	POST   /assets/          create an asset
//	GET    /assets/{id}/     retrieve an asset
//	PUT    /assets/{id}/     replace an asset's writable fields
//	PATCH  /assets/{id}/     update some of an asset's writable fields
//	DELETE /assets/{id}/     soft-delete an asset
//	GET    /stats            register-wide counts, also at /assets/stats/
//	GET    /healthz /readyz  probes
//	GET    /metrics          Prometheus metrics
//
// Every asset in a response carries its absolute url and the modifying
// methods the caller may use on it in allowed_methods. Listings are cursor
// paginated as {"next": ..., "previous": ..., "results": [...]}.
//
// # Errors
//
// Errors are JSON. Payload and query validation failures map each field to
// its messages; everything else is {"detail": "..."}. Anonymous callers who
// fail the access policy get 401 with a "WWW-Authenticate: Bearer"
// challenge, authenticated ones 403. Assets that are deleted or not visible
// to the caller are 404.
package api
