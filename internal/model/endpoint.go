package model

import "strings"

// EndpointVariant distinguishes the venue's two websocket protocol flavors.
// Business endpoints require an extra instType field in the subscribe arg.
type EndpointVariant int

const (
	VariantPublic EndpointVariant = iota
	VariantBusiness
)

func (v EndpointVariant) String() string {
	if v == VariantBusiness {
		return "business"
	}
	return "public"
}

// Endpoint is one transport address in the ordered failover list.
type Endpoint struct {
	URL     string
	Variant EndpointVariant
}

// ParseEndpoint builds an Endpoint from a raw websocket URL, inferring the
// protocol variant from the path.
func ParseEndpoint(raw string) Endpoint {
	v := VariantPublic
	if strings.Contains(raw, "/business") {
		v = VariantBusiness
	}
	return Endpoint{URL: raw, Variant: v}
}

// DefaultEndpoints is the venue's websocket address rotation, business
// variants first.
func DefaultEndpoints() []Endpoint {
	urls := []string{
		"wss://ws.okx.com:8443/ws/v5/business",
		"wss://wsaws.okx.com:8443/ws/v5/business",
		"wss://wspap.okx.com:8443/ws/v5/business",
		"wss://ws.okx.com:8443/ws/v5/public",
		"wss://wsaws.okx.com:8443/ws/v5/public",
		"wss://wspap.okx.com:8443/ws/v5/public",
	}
	eps := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		eps = append(eps, ParseEndpoint(u))
	}
	return eps
}
