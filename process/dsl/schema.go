// Package dsl loads and validates the YAML surface that describes a
// process: its agents, the edges routing between them, and any HTTP
// tool manifests a utcp_agent may call out to.
package dsl

// Document is the top-level YAML shape of a process definition.
type Document struct {
	Process ProcessDef         `yaml:"process"`
	Agents  map[string]AgentDef `yaml:"agents"`
	Edges   []EdgeDef          `yaml:"edges,omitempty"`
	Tools   map[string]ToolManifestDef `yaml:"tools,omitempty"`
}

// ProcessDef carries the run-level identity and termination condition.
type ProcessDef struct {
	Name          string `yaml:"name"`
	Start         string `yaml:"start"`
	DoneCondition string `yaml:"done_condition,omitempty"`
}

// Kind enumerates the six closed agent variants.
type Kind string

const (
	KindLLM           Kind = "llm"
	KindDeterministic Kind = "deterministic"
	KindReflection    Kind = "reflection"
	KindToolUsing     Kind = "tool_using"
	KindSupervisor    Kind = "supervisor"
	KindUTCPAgent     Kind = "utcp_agent"
)

var validKinds = map[Kind]bool{
	KindLLM: true, KindDeterministic: true, KindReflection: true,
	KindToolUsing: true, KindSupervisor: true, KindUTCPAgent: true,
}

// AgentDef is the YAML shape of one agent node. Not every field applies
// to every kind; the validator enforces which ones are required per kind.
type AgentDef struct {
	Kind    Kind   `yaml:"kind"`
	Purpose string `yaml:"purpose,omitempty"`

	// llm / reflection / tool_using / supervisor / utcp_agent
	ModelName      string `yaml:"model_name,omitempty"`
	PromptTemplate string `yaml:"prompt_template,omitempty"`

	// llm
	OutputKey        string `yaml:"output_key,omitempty"`
	ForceJSONOutput  bool   `yaml:"force_json_output,omitempty"`

	// deterministic
	Function string `yaml:"function,omitempty"`

	// reflection
	ApproveLabel string `yaml:"approve_label,omitempty"`
	RefineLabel  string `yaml:"refine_label,omitempty"`
	Rule         string `yaml:"rule,omitempty"`

	// tool_using / utcp_agent
	Tools    []string `yaml:"tools,omitempty"`
	MaxSteps int      `yaml:"max_steps,omitempty"`

	// supervisor
	AvailableAgents []string `yaml:"available_agents,omitempty"`
}

// EdgeDef describes one transition. Condition is optional: an edge with
// no condition is the unconditional fallback for its "from" node.
type EdgeDef struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition,omitempty"`
}

// ToolManifestDef describes an HTTP tool surface that a utcp_agent can invoke.
type ToolManifestDef struct {
	Description    string                `yaml:"description,omitempty"`
	ProviderType   string                `yaml:"provider_type"`
	ProviderConfig ToolProviderConfigDef `yaml:"provider_config"`
	Tools          []ToolOperationDef    `yaml:"tools"`
}

// ToolProviderConfigDef configures how the manifest's base endpoint is reached.
type ToolProviderConfigDef struct {
	BaseURL string      `yaml:"base_url"`
	Auth    ToolAuthDef `yaml:"auth,omitempty"`
}

// ToolAuthDef describes the authentication scheme for a tool manifest.
type ToolAuthDef struct {
	Type   string `yaml:"type,omitempty"` // "bearer"
	Secret string `yaml:"secret,omitempty"` // name of an environment variable
}

// ToolOperationDef is one callable operation inside a manifest.
type ToolOperationDef struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Endpoint    string                 `yaml:"endpoint"`
	Method      string                 `yaml:"method"`
	Parameters  map[string]interface{} `yaml:"parameters,omitempty"`
}

// TerminalNode is the reserved sentinel that ends a run when reached as an
// edge target.
const TerminalNode = "__end__"

// FinishSentinel is the value a supervisor writes to quality.next_agent to
// signal it is done routing; conventionally paired with a conditional edge
// to TerminalNode.
const FinishSentinel = "FINISH"
