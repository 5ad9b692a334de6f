package aggregation

import (
	"fmt"
	"net/url"
	"strings"
)

// defaultAggregationPort is appended to an operator's RPC host when its
// advertised address carries no explicit aggregation path, mirroring
// convert_rpc_to_aggregation_url's port-replacement branch.
const defaultAggregationPort = "9090"

// ConvertRPCToAggregationURL turns an operator's advertised RPC
// address into the URL this service polls for partial signatures. Two
// shapes are supported, exactly as in the Rust original:
//
//   - a bare host[:port] (optionally schemed) gets its port replaced
//     with defaultAggregationPort and a fixed "/aggregate" path appended;
//   - an address that already carries a path is left alone apart from
//     having "/aggregate" appended, so operators can front their
//     aggregation endpoint with a reverse proxy under a custom prefix.
func ConvertRPCToAggregationURL(rpcAddress string) (string, error) {
	if rpcAddress == "" {
		return "", fmt.Errorf("aggregation: empty rpc address")
	}

	raw := rpcAddress
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("aggregation: parse rpc address %q: %w", rpcAddress, err)
	}

	if u.Path != "" && u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/") + "/aggregate"
		return u.String(), nil
	}

	u.Host = replacePort(u.Hostname(), defaultAggregationPort)
	u.Path = "/aggregate"
	return u.String(), nil
}

func replacePort(host, port string) string {
	return host + ":" + port
}
