// Package httpapi exposes the engine over HTTP with a chi router. Every
// response uses the envelope from internal/response; sessions travel in
// an HttpOnly cookie or an Authorization bearer header.
package httpapi
