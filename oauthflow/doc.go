// Package oauthflow runs the browser side of the OAuth2 authorization-code
// flow: GET /auth/{provider} and GET /auth/{provider}/callback.
//
// Nothing about a pending sign-in is kept on the server. Init stores the
// state, the PKCE verifier, the sign-in method and the return URL in
// short-lived http-only cookies; the callback checks and clears them.
//
// The callback is the only place where failures become redirects. Once the
// redirectUrl cookie names a registered origin, every failure sends the
// browser to that origin's error page with an authgate.ErrorKey in the
// "error" query parameter. Before that point the response is a plain 403.
package oauthflow
