package routes

// MURoutes returns the memory-unit route table: comparable to the CU
// profile but simpler — processId always arrives in path or query, there is
// no bailout overlay wired for this role (config.Validate rejects it), and
// no restreaming is needed (spec §4.7, §6: "MU role uses a comparable but
// distinct set ... the exact list is configuration-shaped").
func MURoutes() []Route {
	return []Route{
		{
			Method:     "POST",
			Pattern:    "POST /message",
			ProcessId:  fromQueryParam("process-id"),
			RouteLabel: "message",
		},
		{
			Method:     "GET",
			Pattern:    "GET /schedule/{processId}",
			ProcessId:  fromPathParam("processId"),
			RouteLabel: "schedule",
		},
		{
			Method:     "GET",
			Pattern:    "GET /state/{processId}",
			ProcessId:  fromPathParam("processId"),
			RouteLabel: "state",
		},
	}
}
