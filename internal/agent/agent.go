// Package agent describes the roles that take part in a wave: their output
// contracts, their prompts and the parsing of their free-text answers.
package agent

// Role identifies an agent role within the wave pipeline.
type Role string

const (
	RoleIngest    Role = "ingest"
	RoleAnalyzerA Role = "analyzer_a"
	RoleAnalyzerB Role = "analyzer_b"
	RolePlanner   Role = "planner"
	RoleValidator Role = "validator"
	RoleOptimizer Role = "optimizer"
	RoleExecutor1 Role = "executor_1"
	RoleExecutor2 Role = "executor_2"
	RoleMonitor   Role = "monitor"
	RoleReporter  Role = "reporter"
	RoleCleaner   Role = "cleaner"
)

// Card describes a role the way it is presented to the model.
type Card struct {
	Role        Role
	Name        string
	Description string

	// Task is the instruction appended after the shared state snapshot.
	Task string
}

var cards = map[Role]Card{
	RoleIngest: {
		Role:        RoleIngest,
		Name:        "Ingest",
		Description: "You restate a software engineering request precisely before any work starts.",
		Task: "Restate the request as a problem statement and list the success criteria, constraints, " +
			"assumptions and artifacts (files, modules, documents) that will need to change.",
	},
	RoleAnalyzerA: {
		Role:        RoleAnalyzerA,
		Name:        "Analyzer A",
		Description: "You analyze requests from the point of view of correctness, data flow and failure modes.",
		Task: "Analyze the problem. Report key insights, constraints you discovered, assumptions you had to make, " +
			"risks, and recommendations for the planning wave.",
	},
	RoleAnalyzerB: {
		Role:        RoleAnalyzerB,
		Name:        "Analyzer B",
		Description: "You analyze requests from the point of view of users, operations and maintainability.",
		Task: "Analyze the problem. Report key insights, constraints you discovered, assumptions you had to make, " +
			"risks, and recommendations for the planning wave.",
	},
	RolePlanner: {
		Role:        RolePlanner,
		Name:        "Planner",
		Description: "You turn an analyzed problem into an ordered implementation plan.",
		Task: "Write a step by step plan that satisfies every success criterion and constraint, " +
			"and list the deliverables it produces.",
	},
	RoleValidator: {
		Role:        RoleValidator,
		Name:        "Validator",
		Description: "You check whether a problem is ready to be implemented and what could go wrong.",
		Task: "Score readiness from 0 to 100, list edge cases, build a risk register with severity and " +
			"mitigation for each risk, and list any contradictions or gaps in the current state.",
	},
	RoleOptimizer: {
		Role:        RoleOptimizer,
		Name:        "Optimizer",
		Description: "You look for the simplest solution that still meets the success criteria.",
		Task:        "Suggest simplifications and ways to split the work into modules.",
	},
	RoleExecutor1: {
		Role:        RoleExecutor1,
		Name:        "Executor 1",
		Description: "You produce the concrete deliverable: code, configuration or prose.",
		Task: "Carry out the plan. Produce the concrete output, the steps to integrate it, " +
			"and the tests or checks that prove it works.",
	},
	RoleExecutor2: {
		Role:        RoleExecutor2,
		Name:        "Executor 2",
		Description: "You produce the supporting deliverables: tests, migrations and documentation.",
		Task: "Carry out the parts of the plan that support the main change. Produce the concrete output, " +
			"the steps to integrate it, and the tests or checks that prove it works.",
	},
	RoleMonitor: {
		Role:        RoleMonitor,
		Name:        "Monitor",
		Description: "You judge whether the produced work satisfies the request.",
		Task: `Compare the outline against the success criteria and constraints. Answer with verdict "pass", ` +
			`"warn" or "fail" and list the issues you found.`,
	},
	RoleReporter: {
		Role:        RoleReporter,
		Name:        "Reporter",
		Description: "You write the answer the user will read.",
		Task:        "Write the final answer in markdown, based on the plan and the final answer outline.",
	},
	RoleCleaner: {
		Role:        RoleCleaner,
		Name:        "Cleaner",
		Description: "You polish an answer without changing its meaning.",
		Task:        "Produce a cleaned, deduplicated and well formatted version of the final answer outline.",
	},
}

// CardFor returns the card of role. Unknown roles get a generic card so
// custom waves still run.
func CardFor(role Role) Card {
	if c, ok := cards[role]; ok {
		return c
	}
	return Card{
		Role:        role,
		Name:        string(role),
		Description: "You are a software engineering assistant taking part in a multi-agent pipeline.",
		Task:        "Contribute your analysis of the problem as a JSON object.",
	}
}
