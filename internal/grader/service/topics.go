// Package service wires the pipeline stages together: intake publishes
// compile jobs, the compile stage feeds the execute stage, and reference
// ingestion prepares everything graders compare against.
package service

// Stage topics. Compile-before-execute ordering per submission comes from
// publishing the execute job only after a successful compile record, not
// from the channel itself.
const (
	TopicCompileRequested = "compile.requested"
	TopicExecuteRequested = "execute.requested"
)
