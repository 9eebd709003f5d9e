package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Workflow endpoints
	WorkflowURLParam        = "workflowId"                            // URL parameter for workflow ID
	WorkflowsEndpoint       = "/workflows"                            // POST: Create a workflow
	WorkflowEndpoint        = "/workflows/{" + WorkflowURLParam + "}" // GET: Workflow snapshot, DELETE: Close and drop it
	WorkflowAdvanceEndpoint = WorkflowEndpoint + "/advance"           // POST: Run the workflow until it completes or pauses
	WorkflowRetryEndpoint   = WorkflowEndpoint + "/retry"             // POST: Resume a paused workflow
	WorkflowCancelEndpoint  = WorkflowEndpoint + "/cancel"            // POST: Cancel the workflow

	// Query endpoints
	QueryURLParam     = "queryName"                        // URL parameter for query name
	QueryEndpoint     = "/queries/{" + QueryURLParam + "}" // GET: Last value of a query
	RefreshQueryParam = "refresh"                          // URL query param forcing a refresh
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. If the placeholder is not present the
// value is appended as a query parameter.
func EndpointWithParam(path, key, param string) string {
	placeholder := fmt.Sprintf("{%s}", key)
	if strings.Contains(path, placeholder) {
		return strings.Replace(path, placeholder, url.PathEscape(param), 1)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + url.QueryEscape(key) + "=" + url.QueryEscape(param)
}
