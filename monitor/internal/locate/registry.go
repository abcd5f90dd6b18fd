package locate

// Region names the session and scanner resolve through the registry.
const (
	RegionLoginUsername = "login_username"
	RegionLoginPassword = "login_password"
	RegionLoginSubmit   = "login_submit"
	RegionTable         = "table"
	RegionTableRows     = "table_body_rows"
	RegionTooltip       = "tooltip"
)

// Registry maps region names to their fallback chains. Static
// configuration data, not run state.
type Registry map[string]Chain

// DefaultRegistry returns the built-in chains for the standard regions.
// Chains can be overridden per region from configuration.
func DefaultRegistry() Registry {
	return Registry{
		RegionLoginUsername: {Region: RegionLoginUsername, Strategies: []Strategy{
			CSS(`input[type="email"]`),
			CSS(`input[name="username"]`),
			CSS(`input[name="email"]`),
			CSS(`input#email`),
		}},
		RegionLoginPassword: {Region: RegionLoginPassword, Strategies: []Strategy{
			CSS(`input[type="password"]`),
			CSS(`input[name="password"]`),
			CSS(`input#password`),
		}},
		RegionLoginSubmit: {Region: RegionLoginSubmit, Strategies: []Strategy{
			CSS(`button[type="submit"]`),
			Text("ログイン"),
			Text("Login"),
		}},
		RegionTable: {Region: RegionTable, Strategies: []Strategy{
			CSS(`tbody`),
			CSS(`table`),
			XPath(`//table`),
		}},
		RegionTableRows: {Region: RegionTableRows, Strategies: []Strategy{
			CSS(`tbody tr`),
			CSS(`table tr`),
			XPath(`//tr[td]`),
		}},
		RegionTooltip: {Region: RegionTooltip, Strategies: []Strategy{
			CSS(`[role="tooltip"]`),
			CSS(`.tooltip`),
			CSS(`.error-tooltip`),
			CSS(`[data-tooltip]`),
		}},
	}
}

// Override replaces the chain for a region. Empty strategy lists are
// ignored so a config stub cannot erase a built-in chain.
func (r Registry) Override(region string, strategies []Strategy) {
	if len(strategies) == 0 {
		return
	}
	r[region] = Chain{Region: region, Strategies: strategies}
}
