// Package api hosts the read-only status endpoints served next to /metrics
// while a crawl runs:
//   - GET /api/sessions?state=&limit=&offset= lists crawl sessions.
//   - GET /api/sessions/{session_id} returns one session.
//   - GET /api/sites?limit=&offset= returns per-site fetch totals.
package api
