package routes

// CURoutes returns the compute-unit route table (spec §6): a dry-run POST
// requiring body restream and result/state/cron GETs keyed by path or query
// parameters. The healthcheck is not in this table: the caller (cmd/router)
// handles it separately since it never reaches the trampoline.
func CURoutes() []Route {
	return []Route{
		{
			Method:     "POST",
			Pattern:    "POST /dry-run",
			ProcessId:  fromQueryThenBodyField("process-id", "processId"),
			Restream:   restreamJSONBody,
			RouteLabel: "dry_run",
		},
		{
			Method:     "GET",
			Pattern:    "GET /result/{messageId}",
			ProcessId:  fromQueryParam("process-id"),
			RouteLabel: "result",
		},
		{
			Method:     "GET",
			Pattern:    "GET /state/{processId}",
			ProcessId:  fromPathParam("processId"),
			RouteLabel: "state",
		},
		{
			Method:     "GET",
			Pattern:    "GET /cron/{processId}",
			ProcessId:  fromPathParam("processId"),
			RouteLabel: "cron",
		},
	}
}
