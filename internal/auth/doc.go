// Package auth issues and verifies the bearer credentials that gate access
// to the relay's WebSocket endpoint.
//
// A credential is an HS256-signed JWT carrying the participant's display
// name and an expiry. The relay keeps no server-side record of issued
// credentials: verification is a pure function of the token, the shared
// signing secret and the current time.
package auth
