// Package accessgate admits requests that carry a valid bearer token.
//
// A request moves through three states: the Authorization header is
// extracted, the token is verified, and the resulting [Principal] is
// attached to the request context. Rejections are 401 responses with a
// short reason; the handler is never reached.
package accessgate
