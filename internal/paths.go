package internal

import "fmt"

// APIRoot returns the root of the discovery REST API for a given API host.
// For example if the host is api.dataplatform.cloud.ibm.com, the root is
// https://api.dataplatform.cloud.ibm.com/v2/
func APIRoot(apiHost string) string {
	return fmt.Sprintf("https://%v/v2/", apiHost)
}

// FlightLocation returns the gRPC location of the flight service that is
// hosted alongside the discovery API
func FlightLocation(apiHost string) string {
	return fmt.Sprintf("grpc+tls://%v:443", apiHost)
}
