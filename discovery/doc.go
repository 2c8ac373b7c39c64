// Package discovery looks up the metadata needed to read and write data using
// the flight data source connector.
//
// Data assets are discovered by ID, data behind a connection is discovered by
// path:
//
//	d, err := discovery.New(client, "api.dataplatform.cloud.ibm.com")
//	d.SetAccessToken(token)
//	source, err := d.DiscoverAsset(ctx, asset)
//	target, err := d.DiscoverPath(ctx, connection, "/bucket/results.csv")
//
// Both return a *flight.DiscoveryResult that can be turned into options with
// Options.
package discovery
