package gateway

import "github.com/WangQiHao-Charlie/thc6gw/pkg/driver"

// GenericEndpoint is the pass-through endpoint that runs any tool name.
const GenericEndpoint = "thc6"

// Param is one named, required string input of an endpoint.
type Param struct {
	Name        string
	Description string
}

// Endpoint binds a remote operation name to a command template.
type Endpoint struct {
	Name        string
	Description string
	Params      []Param

	// Variadic endpoints also accept a trailing list of positional args.
	Variadic bool
	Template []string
}

func p(name, desc string) Param { return Param{Name: name, Description: desc} }

var (
	ifaceParam  = p("iface", "Network interface to use, e.g. eth0")
	targetParam = p("target", "Target IPv6 address or network")
)

var endpoints = []Endpoint{
	{
		Name:        GenericEndpoint,
		Description: "Run any THC-IPv6 tool with a raw argument list. Example: command=alive6, args=[eth0, fe80::1].",
		Params:      []Param{p("command", "Tool executable name, e.g. alive6")},
		Variadic:    true,
		Template:    []string{"{param:command}", driver.ArgsToken},
	},
	{
		Name:        "alive6",
		Description: "Discover live IPv6 hosts using alive6.",
		Params:      []Param{ifaceParam, targetParam},
		Template:    []string{"alive6", "{param:iface}", "{param:target}"},
	},
	{
		Name:        "thcping6",
		Description: "Run thcping6 sending custom ICMPv6 packets.",
		Params:      []Param{p("src", "Source IPv6 address"), ifaceParam, p("dst", "Destination IPv6 address")},
		Template:    []string{"thcping6", "-F", "{param:src}", "{param:iface}", "x", "{param:dst}"},
	},
	{
		Name:        "detect_new_ip6",
		Description: "Detect new IPv6 nodes appearing on the network.",
		Params:      []Param{ifaceParam},
		Template:    []string{"detect-new-ip6", "{param:iface}"},
	},
	{
		Name:        "flood_router6",
		Description: "Flood the local network with router advertisements (security testing).",
		Params:      []Param{ifaceParam},
		Template:    []string{"flood_router6", "{param:iface}"},
	},
	{
		Name:        "dos_new_ip6",
		Description: "Deny duplicate address detection for new IPv6 addresses.",
		Params:      []Param{ifaceParam, targetParam},
		Template:    []string{"dos-new-ip6", "{param:iface}", "{param:target}"},
	},
	{
		Name:        "fake_router6",
		Description: "Send fake router advertisements announcing an arbitrary prefix.",
		Params:      []Param{ifaceParam, p("prefix", "IPv6 prefix to announce, e.g. 2001:db8::/64")},
		Template:    []string{"fake_router6", "{param:iface}", "{param:prefix}"},
	},
	{
		Name:        "parasite6",
		Description: "Neighbor discovery spoofing with parasite6.",
		Params:      []Param{ifaceParam, p("victim", "Victim IPv6 address"), p("router", "Router IPv6 address")},
		Template:    []string{"parasite6", "{param:iface}", "{param:victim}", "{param:router}"},
	},
	{
		Name:        "exploit6",
		Description: "Run exploit6 against a destination.",
		Params:      []Param{ifaceParam, p("dst", "Destination IPv6 address")},
		Template:    []string{"exploit6", "{param:iface}", "{param:dst}"},
	},
	{
		Name:        "flood_advertise6",
		Description: "Flood the network with neighbor advertisements.",
		Params:      []Param{ifaceParam, targetParam},
		Template:    []string{"flood_advertise6", "{param:iface}", "{param:target}"},
	},
	{
		Name:        "dump_router6",
		Description: "Listen for and dump router advertisements and solicitations.",
		Params:      []Param{ifaceParam},
		Template:    []string{"dump_router6", "{param:iface}"},
	},
}

var (
	endpointIndex = indexEndpoints(endpoints)
	routes        = routeTable(endpoints)
)

func indexEndpoints(in []Endpoint) map[string]int {
	m := make(map[string]int, len(in))
	for i, ep := range in {
		m[ep.Name] = i
	}
	return m
}

func routeTable(in []Endpoint) map[string][]string {
	m := make(map[string][]string, len(in))
	for _, ep := range in {
		m[ep.Name] = ep.Template
	}
	return m
}

// Endpoints returns a copy of the endpoint table in registration order.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(endpoints))
	for i, ep := range endpoints {
		out[i] = ep.clone()
	}
	return out
}

// Lookup returns a copy of the named endpoint.
func Lookup(name string) (Endpoint, bool) {
	i, ok := endpointIndex[name]
	if !ok {
		return Endpoint{}, false
	}
	return endpoints[i].clone(), true
}

func (e Endpoint) clone() Endpoint {
	e.Params = append([]Param(nil), e.Params...)
	e.Template = append([]string(nil), e.Template...)
	return e
}
