// Package flight models the entities that can be referenced through the flight
// discovery API, and turns discovery results into the flat option map that the
// flight data source connector consumes.
//
// A typical read looks like this:
//
//	project, _ := flight.NewProject("0a1b2c")
//	asset, _ := flight.NewDataAsset("3d4e5f", project)
//	result, err := disco.DiscoverAsset(ctx, asset)
//	...
//	options := flight.DeriveOptions(result, apiHost).
//		NumPartitions(2).
//		AccessToken(token).
//		Build()
package flight
