package output

// ComponentInfo describes a registered component type.
type ComponentInfo struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Inputs       []string          `json:"inputs"`
	Outputs      []string          `json:"outputs"`
	Properties   map[string]string `json:"properties,omitempty"`
	FiringPolicy string            `json:"firing_policy"`
}

// DAGNode is one component instance of a flow graph.
type DAGNode struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	DependsOn []string `json:"depends_on,omitempty"`
	Feeds     []string `json:"feeds,omitempty"`
}

// DAGLevel groups the instances that share an execution level.
type DAGLevel struct {
	Level     int       `json:"level"`
	Instances []DAGNode `json:"instances"`
}

// DAGOutput is the JSON form of the dag command.
type DAGOutput struct {
	Flow           string     `json:"flow"`
	Levels         []DAGLevel `json:"levels"`
	TotalInstances int        `json:"total_instances"`
	TotalEdges     int        `json:"total_edges"`
}

// RunEvent is one JSON line emitted while a flow runs.
type RunEvent struct {
	Event      string `json:"event"`
	RunID      string `json:"run_id,omitempty"`
	Flow       string `json:"flow,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Type       string `json:"type,omitempty"`
	Status     string `json:"status,omitempty"`
	Firings    int    `json:"firings,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// RunInfo is one entry of the runs command.
type RunInfo struct {
	ID          string `json:"id"`
	Flow        string `json:"flow"`
	Path        string `json:"path,omitempty"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}
