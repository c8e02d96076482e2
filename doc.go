// Package subwire is a client for Subsonic-style versioned REST media servers.
// Every request passes through a fixed middleware pipeline:
//
//   - Range normalization: a bare offset becomes "Range: bytes=<n>-" and the
//     call gets an idle read timeout scaled by the offset
//   - Authentication: the password is sent reversibly encoded to servers older
//     than 1.13.0 and as a salted MD5 token to newer ones, chosen per request
//     from the version most recently reported by the server
//   - Offline policy: while the host reports no network, requests are forced
//     to the cache with only-if-cached and a bounded max-stale
//   - Cache annotation: successful JSON responses from the network become
//     storable ("private, max-age=0"); media streams are never coerced
//   - Version discovery: the "version" field of JSON responses is picked up
//     by a streaming scan of the first bytes of the body
//
// Typical usage:
//
//	client := subwire.New(
//	    subwire.WithServerURL("https://music.example.com"),
//	    subwire.WithCredentials("alice", "sesame"),
//	    subwire.WithInitialVersion(subwire.V1_13_0),
//	    subwire.WithNetworkState(subwire.NetworkStateFunc(isOnline)),
//	)
//	if err := client.Ping(ctx); err != nil {
//	    // errors.Is(err, subwire.ErrAuthenticationRejected), ...
//	}
//
// The client never retries. Failures surface as *ClientError values that
// match the package's sentinel errors with errors.Is.
package subwire
