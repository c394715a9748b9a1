package cluster

import (
	"strings"

	"github.com/rs/xid"

	"github.com/mcastellin/clustermesh/registry"
)

// ParseKeyExpr extracts (service, peer) from a key expression of shape
// "@<ns>/<service>/<peer_id>". The namespace prefix and any components
// before the final two are ignored — routing namespaces are the caller's
// concern, per spec.md §4.2.
//
// ParseKeyExpr returns ok=false unless path has at least three "/"-
// separated components, the last parses as a valid PeerId, and the
// second-to-last is non-empty.
func ParseKeyExpr(path string) (service registry.ServiceName, peer registry.PeerId, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return "", registry.PeerId{}, false
	}

	peerPart := parts[len(parts)-1]
	svcPart := parts[len(parts)-2]
	if svcPart == "" {
		return "", registry.PeerId{}, false
	}

	id, err := xid.FromString(peerPart)
	if err != nil {
		return "", registry.PeerId{}, false
	}

	return registry.ServiceName(svcPart), id, true
}

// rpcKeyExpr builds the RPC queryable key expression for a service/peer.
func rpcKeyExpr(service string, peer registry.PeerId) string {
	return "@rpc/" + service + "/" + peer.String()
}

// liveKeyExpr builds this peer's own liveliness token key expression.
func liveKeyExpr(service string, peer registry.PeerId) string {
	return "@live/" + service + "/" + peer.String()
}

// liveWildcard is the key expression subscribed to observe every peer's
// liveliness.
const liveWildcard = "@live/**"

// chlKeyExpr builds the push channel key expression for a service/peer.
func chlKeyExpr(service string, peer registry.PeerId) string {
	return "@chl/" + service + "/" + peer.String()
}
