// Package dispatch sends text and media messages through a session's
// protocol client.
//
// Every send validates in the same order: missing parameters, recipient
// format, connection state, then recipient existence on the network.
// Positive existence lookups are cached per tenant for a short TTL;
// negative lookups are always re-checked.
//
// Media comes from one of two sources. SendMedia downloads a remote URL
// into the tenant's cache. SendMediaUpload uses a file staged by an earlier
// upload. Only photos are sent. Other kinds fail with
// ErrUnsupportedMediaKind before any network call.
package dispatch
