// Package facebook publishes to Facebook Pages through the Graph API. Posts
// always go out under a page access token, never the user token.
package facebook
