// Package e2e runs wat against a real Chrome. The tests are behind the
// e2e build tag:
//
//	go test -tags e2e ./e2e/
//
// They serve a minimal rendition of the game's UI contract and a
// provisioning API from httptest servers.
package e2e
