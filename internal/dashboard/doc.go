// Package dashboard serves the operator dashboard web UI as an embedded asset.
//
// The dashboard is a small hand-written single-page app embedded into the
// Go binary using the go:embed directive, eliminating any runtime
// dependency on external files. It connects to the signalling endpoint as
// a controller, renders the live device roster, and issues commands to
// selected devices.
//
// The Handler function returns an http.Handler that serves these assets
// with SPA (Single Page Application) fallback routing: if a requested
// file does not exist, index.html is served so that client-side routing
// works correctly.
//
// Cache-control headers are set to no-cache; the bundle is small enough
// that revalidating on every load is cheaper than cache-busting.
package dashboard
