// Package apikey verifies HMAC-signed machine requests and mints key
// credentials.
//
// A signed request carries a key id, a millisecond nonce, and a hex
// HMAC-SHA256 signature over method+path+nonce computed with the key's
// secret. Replay protection is the nonce time window only; a captured request
// can be replayed until the window closes.
package apikey
