// Package mwapi provides a versioned MediaWiki Action API client for bulk
// maintenance tooling.
//
// The entry point is New, which selects a protocol variant (1.31 with the
// modern "continue" protocol, or legacy 1.19 with "query-continue") behind
// the API interface. Paginated list modules are consumed through Pager,
// a lazy forward-only sequence driven by continuation tokens. All outbound
// calls pass through a configurable Throttle.
package mwapi
