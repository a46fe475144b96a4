// Package storage provides the token stores a client reads and writes its
// credential through.
//
//   - Memory: process memory, used as local-storage by default and in tests
//   - RequestCookies: server side; reads the incoming request and answers
//     with Set-Cookie headers
//   - JarCookies: client side; an http.CookieJar shared with the HTTP
//     transport so written cookies travel with requests
//   - boltstore: persistent local-storage in a bbolt file
//   - redisstore: a Redis hash shared by several processes
//
// Every Store is keyed by the configured token name.
package storage
